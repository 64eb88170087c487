package config

import (
	"errors"
	"fmt"

	"github.com/jessevdk/go-flags"
)

// Files are the command line options every binary accepts.
type Files struct {
	Config string `long:"config" default:"config/settings.yaml" description:"Settings YAML file"`
	Env    string `long:"env" default:"config/.env" description:"Env file loaded before the settings"`
}

// ParseFlags fills opts from args. It returns false when help was printed.
func ParseFlags(opts any, args []string) (bool, error) {
	parser := flags.NewParser(opts, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return false, nil
		}
		return false, fmt.Errorf("parse flags: %w", err)
	}
	return true, nil
}
