// Package main mints service tokens for the chat bot and operators.
// The signing key comes from the same environment as the server
// (SERVICE_TOKEN_KEY or SERVICE_SECRET), optionally via a .env file.
//
// Usage:
//
//	go run ./cmd/companion-token -subject telegram-bot
//	go run ./cmd/companion-token -subject ops -role admin -ttl 1h
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/jmylchreest/companion-api/internal/auth"
	"github.com/jmylchreest/companion-api/internal/config"
	"github.com/jmylchreest/companion-api/internal/version"
)

func main() {
	subject := flag.String("subject", "", "Token subject, e.g. the bot name (required)")
	role := flag.String("role", string(auth.RoleBot), "Caller role: bot or admin")
	ttl := flag.Duration("ttl", 0, "Token lifetime (default: SERVICE_TOKEN_EXPIRY, negative = no expiry)")
	envFile := flag.String("env", ".env", "Optional env file to load")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Get().Short())
		return
	}

	if *subject == "" {
		fmt.Fprintln(os.Stderr, "error: -subject is required")
		flag.Usage()
		os.Exit(2)
	}

	_ = godotenv.Load(*envFile)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(1)
	}

	lifetime := *ttl
	if lifetime == 0 {
		lifetime = cfg.ServiceTokenExpiry
	}

	verifier := auth.NewTokenVerifier(cfg.ServiceTokenKey, cfg.ServiceTokenIssuer, nil)
	token, err := verifier.Issue(*subject, auth.Role(*role), lifetime)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error issuing token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
