package main

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"lettercast/internal/logging"
	"lettercast/migrations"
)

type options struct {
	DB   string `long:"db" env:"LETTERCAST_DB_PATH" default:"data/lettercast.db" description:"Path to the SQLite database"`
	Args struct {
		Command string `positional-arg-name:"command" description:"up, up-one, down, status, version or reset"`
	} `positional-args:"yes"`
}

const usage = `Commands:
  up          Migrate to the latest version
  up-one      Migrate one version up
  down        Roll back one version
  status      Show migration status
  version     Show current version
  reset       Roll back all migrations`

func main() {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	parser.Usage = "[--db path] <command>\n\n" + usage
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			return
		}
		os.Exit(2)
	}
	if opts.Args.Command == "" {
		parser.WriteHelp(os.Stderr)
		os.Exit(1)
	}

	log := logging.Named(logging.New(os.Stderr, os.Getenv("LOG_LEVEL")), "migrate")

	db, err := sql.Open("sqlite", opts.DB)
	if err != nil {
		log.Error("open database", "path", opts.DB, "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		log.Error("set dialect", "error", err)
		os.Exit(1) //nolint:gocritic // process exits, the database handle goes with it
	}

	cmd := opts.Args.Command
	switch cmd {
	case "up":
		err = goose.Up(db, ".")
	case "up-one":
		err = goose.UpByOne(db, ".")
	case "down":
		err = goose.Down(db, ".")
	case "status":
		err = goose.Status(db, ".")
	case "version":
		err = goose.Version(db, ".")
	case "reset":
		err = goose.Reset(db, ".")
	default:
		err = fmt.Errorf("unknown command %q", cmd)
	}
	if err != nil {
		log.Error(cmd, "db", opts.DB, "error", err)
		os.Exit(1)
	}
}
