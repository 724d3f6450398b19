package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/hearthlane/termbroker/internal/authn"
	"github.com/hearthlane/termbroker/internal/config"
	"github.com/hearthlane/termbroker/internal/session"
	"github.com/hearthlane/termbroker/internal/store"
	"github.com/hearthlane/termbroker/src/api"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found")
	}

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("Failed to parse configuration: %v", err)
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open session store at %s: %v", cfg.DatabasePath, err)
	}
	defer st.Close()

	manager := session.New(st)
	if err := manager.RestartRecovery(); err != nil {
		log.Fatalf("Failed to recover sessions from a prior run: %v", err)
	}

	// No Authenticator is wired by default: session/cookie authentication
	// primitives are explicitly out of scope for this core (spec.md §1).
	// A deployment that sets auth_required=true is expected to supply its
	// own authn.Authenticator ahead of this call.
	var authenticator authn.Authenticator = authn.NoopAuthenticator{}

	router := api.SetupRouter(manager, st, authenticator, cfg.DisableRequestLog, cfg.EnableProcessingTime)

	serverAddr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	log.Printf("Starting terminal broker on %s", serverAddr)
	if err := router.Run(serverAddr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
