/*
flag Package set up cli flags shared across binaries

Usage:

	Flags listed in this package are shared across boundaries and service-agnostic.
	Binaries call flag.Parse() in main, never in init, so that go test can
	register its own flags first.
*/

package flag

import (
	"flag"
)

const (
	APIServer   = "api_server"
	Recommender = "recommender"
	Reconciler  = "reconciler"
)

var (
	IsDevelopment = flag.Bool("dev", true, "set to true if the current run is for development. default value is true")
	ServiceName   = flag.String("service", APIServer, "'api_server', 'recommender' or 'reconciler'")
	ByPassAuth    = flag.Bool("no_auth", false, "skip token validation and read the user id from the 'sub' header")
	AppConfigPath = flag.String("app_config", "app_config/playlog_app_config.yaml", "path to the yaml app config")
)

// Parse parses command line flags once.
func Parse() {
	if !flag.Parsed() {
		flag.Parse()
	}
}
