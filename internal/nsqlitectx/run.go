package nsqlitectx

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nsqlite/nsqlitectx/internal/log"
	"github.com/nsqlite/nsqlitectx/internal/nsqlitectx/config"
	"github.com/nsqlite/nsqlitectx/internal/nsqlitectx/repl"
	"github.com/nsqlite/nsqlitectx/internal/registry"
	"github.com/nsqlite/nsqlitectx/internal/schema"
	"github.com/nsqlite/nsqlitectx/internal/version"
)

// Run runs the nsqlitectx console.
func Run(ctx context.Context) error {
	conf := config.MustParse(os.Args)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println(version.CLIVersion())

	logger := log.NewLoggerWithOptions(os.Stderr, log.Options{
		Level: conf.LogLevel,
		File:  conf.LogFile,
	})
	defer logger.Close()

	var templates *schema.Templates
	if conf.TemplatePath != "" {
		templates = &schema.Templates{ResourcePath: conf.TemplatePath}
	}

	main, err := schema.Init(ctx, schema.Config{
		Logger:               logger,
		Path:                 schema.ProgramDatabasePath(conf.DataDirectory),
		Templates:            templates,
		DisableOptimizations: conf.DisableOptimizations,
		AssertOwner:          conf.Debug,
	})
	if err != nil {
		return fmt.Errorf("error initializing database: %w", err)
	}

	reg, err := registry.New(logger, main)
	if err != nil {
		_ = main.Close(ctx)
		return fmt.Errorf("error creating connection context registry: %w", err)
	}
	defer func() {
		if err := reg.Close(context.Background()); err != nil {
			logger.Error("error closing database", log.KV{"error": err.Error()})
		}
	}()

	rp := repl.NewRepl(ctx, stop, conf, repl.Deps{
		Logger:    logger,
		Registry:  reg,
		Templates: templates,
	})
	// Runs before the registry closes the main context.
	defer rp.Shutdown()
	go func() {
		if err := rp.Start(); err != nil {
			fmt.Println(err)
			stop()
		}
	}()

	<-ctx.Done()
	fmt.Printf("\nGoodbye!\n\n")
	return nil
}
