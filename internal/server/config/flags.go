package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/mailkeeper/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   gRPC bind address (e.g. ":50051")
//	-w string   HTTP bind address (e.g. ":8080")
//	-d string   PostgreSQL DSN
//	-r string   Redis address
//	-s string   JWT HMAC secret key
//	-t int      session lifetime, hours
//	-l string   log level
//
// os.Args is filtered with flagx.FilterArgs first, so -c/-config and flags
// owned by other components do not break parsing.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-w", "-d", "-r", "-s", "-t", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "gRPC address and port")
	fs.StringVar(&config.EndpointAddrHTTP, "w", config.EndpointAddrHTTP, "HTTP address and port")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.RedisAddr, "r", config.RedisAddr, "redis address")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	sessionTTL := fs.Int("t", int(config.SessionTTL.Hours()), "session lifetime (in hours)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.SessionTTL = time.Duration(*sessionTTL) * time.Hour
}
