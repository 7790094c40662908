package config

import (
	"flag"
	"io"

	"github.com/tubepulse/accounts/internal/flagx"
)

// parseFlags overlays the command-line flags this package owns onto cfg.
//
//	-a string     gRPC bind address (e.g. ":50051")
//	-m string     metrics bind address
//	-d string     PostgreSQL DSN; empty selects the in-memory store
//	-e string     environment name
//	-r string     Redis address for login throttling
//	-t duration   access credential lifetime
//	-T duration   refresh credential lifetime
//	-u string     public base URL used in email links
//
// Other flags are filtered out with flagx.FilterArgs.
func parseFlags(config *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-m", "-d", "-e", "-r", "-t", "-T", "-u"})

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.GRPCAddr, "a", config.GRPCAddr, "address and port to run the gRPC server")
	fs.StringVar(&config.MetricsAddr, "m", config.MetricsAddr, "address and port to expose metrics")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.Environment, "e", config.Environment, "environment")
	fs.StringVar(&config.RedisAddr, "r", config.RedisAddr, "redis address")
	fs.DurationVar(&config.AccessTTL, "t", config.AccessTTL, "access token lifetime")
	fs.DurationVar(&config.RefreshTTL, "T", config.RefreshTTL, "refresh token lifetime")
	fs.StringVar(&config.AppBaseURL, "u", config.AppBaseURL, "public application URL")

	return fs.Parse(args)
}
