package main

import "github.com/timothygachengo/riju/pkg/cmd"

func main() {
	cmd.Execute()
}
