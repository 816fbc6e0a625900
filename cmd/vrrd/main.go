// Package main is the single-binary entrypoint for vrrd, the VRR panel
// control daemon.
package main

import "github.com/panelworks/vrrd/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
