// Package config resolves the broker's startup configuration from
// command-line flags and environment variables, following the same
// flag-then-env precedence main.go's teacher used for its port flag.
package config

import (
	"flag"
	"os"
)

// Config is the set of values read once at process startup. Per spec.md §6,
// only DatabasePath affects the core (session manager, persistence
// adapter); the rest are read here because the broker as a whole needs
// them, but they are opaque to the terminal-broker core itself.
type Config struct {
	Host                 string
	Port                 int
	DatabasePath         string
	SessionCookieName    string
	SessionSecret        string
	BootstrapAdminUser   string
	BootstrapAdminPass   string
	DisableRequestLog    bool
	EnableProcessingTime bool
}

// Load resolves Config from flags and environment variables. It does not
// call flag.Parse on a flag.FlagSet shared with the caller's own flags;
// it registers its own set so tests can call Load without colliding with
// package-level flag registration elsewhere.
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("termbroker", flag.ContinueOnError)

	port := fs.Int("port", envInt("PORT", 8080), "port to listen on")
	shortPort := fs.Int("p", 0, "port to listen on (shorthand)")
	host := fs.String("host", envOr("HOST", "0.0.0.0"), "host to listen on")
	dbPath := fs.String("db", envOr("DB_PATH", "data/termbroker.sqlite3"), "path to the SQLite database file")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	portValue := *port
	if *shortPort != 0 {
		portValue = *shortPort
	}

	return &Config{
		Host:               *host,
		Port:               portValue,
		DatabasePath:       *dbPath,
		SessionCookieName:  envOr("SESSION_COOKIE", "termbroker_session"),
		SessionSecret:      envOr("SESSION_SECRET", "change-me-please-very-secret"),
		BootstrapAdminUser: envOr("BOOTSTRAP_ADMIN_USERNAME", "admin"),
		BootstrapAdminPass: envOr("BOOTSTRAP_ADMIN_PASSWORD", "admin-change-me"),
		DisableRequestLog:  envBool("DISABLE_REQUEST_LOG"),
		EnableProcessingTime: !envBool("DISABLE_PROCESSING_TIME"),
	}, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n := 0
	for _, c := range v {
		if c < '0' || c > '9' {
			return fallback
		}
		n = n*10 + int(c-'0')
	}
	return n
}

func envBool(key string) bool {
	v := os.Getenv(key)
	return v == "true" || v == "1"
}
