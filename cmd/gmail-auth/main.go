package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"lettercast/internal/config"
	"lettercast/internal/gmailauth"
	"lettercast/internal/logging"
)

func main() {
	var opts config.Files
	ok, err := config.ParseFlags(&opts, os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if !ok {
		return
	}

	cfg, err := config.Load(opts.Config, opts.Env)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	log := logging.Named(logging.New(os.Stderr, cfg.Log.Level), "gmail-auth")

	oauthCfg, err := gmailauth.LoadConfig(cfg.Gmail.CredentialsPath)
	if err != nil {
		log.Error("load credentials (download an OAuth desktop client JSON from Google Cloud Console)",
			"path", cfg.Gmail.CredentialsPath, "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tok, err := gmailauth.Authorize(ctx, oauthCfg, func(url string) error {
		fmt.Println("Open this URL in a browser and grant access:")
		fmt.Println()
		fmt.Println(url)
		fmt.Println()
		return nil
	})
	if err != nil {
		log.Error("authorize", "error", err)
		os.Exit(1) //nolint:gocritic // cancel only releases the signal handler
	}

	if err := gmailauth.SaveToken(cfg.Gmail.TokenPath, tok); err != nil {
		log.Error("save token", "path", cfg.Gmail.TokenPath, "error", err)
		os.Exit(1)
	}
	log.Info("gmail token saved", "path", cfg.Gmail.TokenPath)
}
