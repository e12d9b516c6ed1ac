package depgraph

import "errors"

// ErrConfig marks configuration errors: unresolved references, dangling
// informational keys, dependency cycles, unknown targets. They are detected
// during graph assembly or plan setup, before any hash work begins.
var ErrConfig = errors.New("configuration error")

// IsConfig reports whether err is a configuration error.
func IsConfig(err error) bool {
	return errors.Is(err, ErrConfig)
}
