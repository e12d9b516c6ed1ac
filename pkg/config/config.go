// Package config resolves the project manifest (riju.toml) and the
// per-language manifests under langs/. All required values are validated
// up front so leaf code never reads ambient process state.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

// ManifestFileName is the project manifest at the repository root.
const ManifestFileName = "riju.toml"

// Config is the resolved project configuration. Precedence:
// RIJU_* env vars > riju.toml.
type Config struct {
	Registry RegistryConfig `toml:"registry" mapstructure:"registry"`
	Deploy   DeployConfig   `toml:"deploy" mapstructure:"deploy"`
	Paths    PathsConfig    `toml:"paths" mapstructure:"paths"`

	// BaseImage is the externally-versioned image the whole graph builds
	// on (e.g. "ubuntu:24.04"). It is the one FROM reference allowed to
	// point outside the project's own image namespace.
	BaseImage string `toml:"base_image" mapstructure:"base_image"`

	// Shared lists the shared-dependency packages every language image
	// can rely on.
	Shared []string `toml:"shared" mapstructure:"shared"`
}

type RegistryConfig struct {
	// Repo is the remote image repository (e.g. "docker.io/riju").
	Repo string `toml:"repo" mapstructure:"repo"`
	// Bucket is the S3 bucket holding packages and published hash keys.
	Bucket string `toml:"bucket" mapstructure:"bucket"`
}

type DeployConfig struct {
	// Target names the deployment the deploy artifact triggers.
	Target string `toml:"target" mapstructure:"target"`
}

type PathsConfig struct {
	Docker  string `toml:"docker" mapstructure:"docker"`
	Langs   string `toml:"langs" mapstructure:"langs"`
	Scripts string `toml:"scripts" mapstructure:"scripts"`
}

// Load resolves configuration from the manifest at path with RIJU_* env
// overrides (RIJU_REGISTRY_REPO, RIJU_REGISTRY_BUCKET, ...) layered on top
// via Viper, then validates it.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")

	v.SetDefault("paths.docker", "docker")
	v.SetDefault("paths.langs", "langs")
	v.SetDefault("paths.scripts", "scripts")

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("manifest %s not found", path)
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	v.SetEnvPrefix("RIJU")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv does not apply to Unmarshal for keys absent from the
	// file, so bind the overridable keys explicitly.
	for _, key := range []string{"registry.repo", "registry.bucket", "deploy.target"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate fails fast on missing required values so no hash or action work
// starts with an incomplete configuration.
func (c *Config) Validate() error {
	var missing []string
	if c.Registry.Repo == "" {
		missing = append(missing, "registry.repo")
	}
	if c.Registry.Bucket == "" {
		missing = append(missing, "registry.bucket")
	}
	if c.Deploy.Target == "" {
		missing = append(missing, "deploy.target")
	}
	if c.BaseImage == "" {
		missing = append(missing, "base_image")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c *Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}

// SaveFile writes the manifest, used by tests and project scaffolding.
func SaveFile(path string, cfg *Config) error {
	data, err := cfg.Marshal()
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
