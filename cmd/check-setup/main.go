package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"lettercast/internal/config"
	"lettercast/internal/delivery"
	"lettercast/internal/logging"
)

type status string

const (
	statusOK   status = "✅"
	statusWarn status = "⚠️ "
	statusFail status = "❌"
)

type checker struct {
	failed bool
}

func (c *checker) report(s status, name, msg string) {
	if s == statusFail {
		c.failed = true
	}
	fmt.Printf("%s %s ... %s\n", s, name, msg)
}

func main() {
	var opts config.Files
	ok, err := config.ParseFlags(&opts, os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if !ok {
		return
	}

	line := strings.Repeat("=", 50)
	fmt.Println(line)
	fmt.Println("  LetterCast setup check")
	fmt.Println(line)
	fmt.Println()

	c := &checker{}
	c.report(statusOK, "Go runtime", runtime.Version())
	c.checkSQLite()
	c.checkChrome()
	fmt.Println()

	c.checkFile(opts.Config, "cp config/settings.example.yaml "+opts.Config)
	c.checkFile(opts.Env, "cp config/.env.example "+opts.Env)
	fmt.Println()

	cfg, err := config.Load(opts.Config, opts.Env)
	switch {
	case errors.Is(err, config.ErrConfigNotFound):
		fmt.Println("⚠️  settings file missing, skipping detailed checks")
	case err != nil:
		c.report(statusFail, "settings", err.Error())
	default:
		c.checkDetails(cfg)
	}

	fmt.Println()
	if c.failed {
		fmt.Println("Some checks failed.")
		os.Exit(1)
	}
	fmt.Println("Setup looks good.")
}

func (c *checker) checkSQLite() {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		c.report(statusFail, "SQLite database", err.Error())
		return
	}
	defer func() { _ = db.Close() }()

	var version string
	if err := db.QueryRow("SELECT sqlite_version()").Scan(&version); err != nil {
		c.report(statusFail, "SQLite database", err.Error())
		return
	}
	c.report(statusOK, "SQLite database", "OK (v"+version+")")
}

var chromeCandidates = []string{
	"google-chrome",
	"google-chrome-stable",
	"chromium",
	"chromium-browser",
	"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
}

func (c *checker) checkChrome() {
	for _, name := range chromeCandidates {
		if path, err := exec.LookPath(name); err == nil {
			c.report(statusOK, "Chrome", path)
			return
		}
	}
	c.report(statusFail, "Chrome", "not found, install Google Chrome")
}

func (c *checker) checkFile(path, hint string) {
	if _, err := os.Stat(path); err != nil {
		c.report(statusWarn, path, "missing ("+hint+")")
		return
	}
	c.report(statusOK, path, "OK")
}

func (c *checker) checkDetails(cfg *config.Config) {
	if _, err := os.Stat(cfg.Gmail.CredentialsPath); err != nil {
		c.report(statusWarn, "Gmail credentials", "missing ("+cfg.Gmail.CredentialsPath+")")
	} else {
		c.report(statusOK, "Gmail credentials", "OK")
	}

	if _, err := os.Stat(cfg.Gmail.TokenPath); err != nil {
		c.report(statusWarn, "Gmail token", "first authorization needed (run gmail-auth)")
	} else {
		c.report(statusOK, "Gmail token", "OK")
	}

	profile := filepath.Join(config.ExpandHome(cfg.NotebookLM.ChromeUserDataDir), cfg.NotebookLM.ChromeProfile)
	if _, err := os.Stat(profile); err != nil {
		c.report(statusFail, "Chrome profile", "not found ("+profile+")")
	} else {
		c.report(statusOK, "Chrome profile", "OK")
	}

	c.checkTelegram(cfg)
}

func (c *checker) checkTelegram(cfg *config.Config) {
	const name = "Telegram bot connection"
	if cfg.Telegram.BotToken == "" {
		c.report(statusWarn, name, "bot token not set")
		return
	}

	tg, err := delivery.New(cfg.Telegram.BotToken, cfg.Telegram.ChannelID, cfg.Telegram.MaxRetries, logging.Discard())
	if err != nil {
		c.report(statusFail, name, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	username, err := tg.Verify(ctx)
	if err != nil {
		c.report(statusFail, name, err.Error())
		return
	}
	c.report(statusOK, name, "OK (@"+username+")")
}
