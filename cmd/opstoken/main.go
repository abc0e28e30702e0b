// Package main mints a token for the ops feed and stats endpoints.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/aura-community/gatekeeper/config"
	"github.com/aura-community/gatekeeper/internal/ops"
)

func main() {
	subject := flag.String("subject", "dashboard", "token subject, shown in feed logs")
	scope := flag.String("scope", "feed", "token scope")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	token, err := ops.NewTokenService(cfg.Ops.JWTSecret, cfg.Ops.JWTExpireHours).Generate(*subject, *scope)
	if err != nil {
		fmt.Fprintln(os.Stderr, "generate token:", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
