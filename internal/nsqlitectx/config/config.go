package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"

	"github.com/alexflint/go-arg"
	"github.com/nsqlite/nsqlitectx/internal/version"
)

// Config represents the configuration for nsqlitectx.
type Config struct {
	DataDirectory        string `arg:"--data-directory,env:NSQLITECTX_DATA_DIRECTORY" help:"Directory for the program database" default:"./data"`
	TemplatePath         string `arg:"--template-path,env:NSQLITECTX_TEMPLATE_PATH" help:"Template database copied to the data directory when the program database doesn't exist; leave empty to create it from the embedded table scripts"`
	DisableOptimizations bool   `arg:"--disable-optimizations,env:NSQLITECTX_DISABLE_OPTIMIZATIONS" help:"Disable performance optimizations for the SQLite connections, allowing manual tuning" default:"false"`
	Debug                bool   `arg:"--debug,env:NSQLITECTX_DEBUG" help:"Verify on every operation that connection contexts are only used by the worker that owns them" default:"false"`
	LogLevel             string `arg:"--log-level,env:NSQLITECTX_LOG_LEVEL" help:"Log level (debug, info, warn, error)" default:"info"`
	LogFile              string `arg:"--log-file,env:NSQLITECTX_LOG_FILE" help:"Also write logs to this file, rotated by size; leave empty to log only to stderr"`
}

func (Config) Version() string {
	return fmt.Sprintf("%s\n", version.CLIVersion())
}

// MustParse parses and validates the configuration from the command
// line arguments. It returns a Config struct or exits the program
// with an error.
func MustParse(args []string) Config {
	cfg := Config{}

	parser, err := arg.NewParser(
		arg.Config{},
		&cfg,
	)
	if err != nil {
		log.Fatal(err)
	}
	parser.MustParse(args[1:])

	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	return cfg
}

// Validate checks every field of the configuration.
func (c Config) Validate() error {
	if err := validateDataDirectory(c.DataDirectory); err != nil {
		return err
	}
	if err := validateTemplatePath(c.TemplatePath); err != nil {
		return err
	}
	return validateLogLevel(c.LogLevel)
}

// validateDataDirectory validates that dir is set and, if it exists, is a
// directory.
func validateDataDirectory(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return errors.New("data directory is required")
	}

	info, err := os.Stat(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("invalid data directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("invalid data directory, %s is not a directory", dir)
	}
	return nil
}

// validateTemplatePath validates that path, if set, is an existing file.
func validateTemplatePath(path string) error {
	if path == "" {
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("invalid template path: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("invalid template path, %s is a directory", path)
	}
	return nil
}

// validateLogLevel validates if level is a known log level.
func validateLogLevel(level string) error {
	valid := []string{"debug", "info", "warn", "error"}

	if slices.Contains(valid, strings.ToLower(level)) {
		return nil
	}

	return fmt.Errorf(
		"invalid log level, valid values are: %s",
		strings.Join(valid, ", "),
	)
}
