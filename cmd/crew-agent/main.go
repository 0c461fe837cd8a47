// Command crew-agent serves the research assistant with text workflow tools
// (website_audit, business_discovery) on POST /chat.
package main

import (
	"os"

	"github.com/hupe1980/nablmesh/config"
	"github.com/hupe1980/nablmesh/internal/app"
)

func main() {
	os.Exit(app.Main(config.ProfileCrew, os.Args[1:], os.Stderr))
}
