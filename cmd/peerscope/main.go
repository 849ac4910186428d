// Package main is the single-binary entrypoint for peerscope.
package main

import "peerscope/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
