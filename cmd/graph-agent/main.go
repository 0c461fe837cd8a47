// Command graph-agent serves the iClaw assistant with structured workflow
// tools (nabl_audit, nabl_discovery) on POST /chat.
package main

import (
	"os"

	"github.com/hupe1980/nablmesh/config"
	"github.com/hupe1980/nablmesh/internal/app"
)

func main() {
	os.Exit(app.Main(config.ProfileGraph, os.Args[1:], os.Stderr))
}
