// Package schema creates and updates the nsqlitectx program database from
// the table scripts embedded in the binary.
package schema

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nsqlite/nsqlitectx/internal/db"
	"github.com/nsqlite/nsqlitectx/internal/log"
)

// TablesDir is the directory of TablesFS holding one script per table,
// named after the table.
const TablesDir = "tables"

// DatabaseFileName is the name of the program database inside the data
// directory.
const DatabaseFileName = "nsqlitectx.sqlite"

// TablesFS holds the table creation scripts.
//
//go:embed tables/*.sql
var TablesFS embed.FS

// TableVersions lists the current version of every table.
var TableVersions = map[string]int{
	"archive_file": 1,
}

// ErrSchemaBootstrapFailed is returned when the program database could not
// be created or updated.
var ErrSchemaBootstrapFailed = errors.New("failed to initialize database schema")

// Execer is satisfied by *sql.DB and *sql.Conn.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ProgramDatabasePath returns the path of the program database inside
// dataDir.
func ProgramDatabasePath(dataDir string) string {
	return filepath.Join(dataDir, DatabaseFileName)
}

// TableNames returns the names of the tables with a script in fsys, sorted.
func TableNames(fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, TablesDir)
	if err != nil {
		return nil, fmt.Errorf("%w: no table definitions: %w", ErrSchemaBootstrapFailed, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".sql" {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ".sql"))
	}
	sort.Strings(names)
	return names, nil
}

// TableScript returns the creation script of table.
func TableScript(fsys fs.FS, table string) (string, error) {
	b, err := fs.ReadFile(fsys, path.Join(TablesDir, table+".sql"))
	if err != nil {
		return "", fmt.Errorf("can't find table sql script for %s: %w", table, err)
	}
	return string(b), nil
}

func tableExists(ctx context.Context, conn Execer, table string) (bool, error) {
	var count int
	err := conn.QueryRowContext(
		ctx, "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// EnsureTables creates every table of fsys missing from the database behind
// conn.
func EnsureTables(ctx context.Context, conn Execer, fsys fs.FS, logger log.Logger) error {
	tables, err := TableNames(fsys)
	if err != nil {
		return err
	}

	for _, table := range tables {
		exists, err := tableExists(ctx, conn, table)
		if err != nil {
			return fmt.Errorf("%w: failed to look up table %s: %w", ErrSchemaBootstrapFailed, table, err)
		}
		if exists {
			continue
		}

		script, err := TableScript(fsys, table)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrSchemaBootstrapFailed, err)
		}
		if _, err := conn.ExecContext(ctx, script); err != nil {
			return fmt.Errorf("%w: failed to create database table %s: %w", ErrSchemaBootstrapFailed, table, err)
		}

		logger.InfoNs(log.NsSchema, "created database table", log.KV{
			"table":   table,
			"version": TableVersions[table],
		})
	}

	return nil
}

// ResetTable drops table and recreates it from its script in fsys.
func ResetTable(ctx context.Context, conn Execer, fsys fs.FS, table string) error {
	script, err := TableScript(fsys, table)
	if err != nil {
		return err
	}

	if _, err := conn.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", table)); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", table, err)
	}
	if _, err := conn.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("failed to recreate table %s: %w", table, err)
	}
	return nil
}

// CreateDatabase creates a new database file at dbPath with every table of
// fsys.
func CreateDatabase(ctx context.Context, dbPath string, fsys fs.FS, logger log.Logger) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return fmt.Errorf("%w: failed to create database directory: %w", ErrSchemaBootstrapFailed, err)
	}

	sqlDB, err := sql.Open("sqlite3", "file:"+dbPath)
	if err != nil {
		return fmt.Errorf("%w: failed to create database %s: %w", ErrSchemaBootstrapFailed, dbPath, err)
	}
	defer sqlDB.Close()

	if err := EnsureTables(ctx, sqlDB, fsys, logger); err != nil {
		return err
	}

	logger.InfoNs(log.NsSchema, "created database", log.KV{"path": dbPath})
	return nil
}

// UpdateDatabase creates the tables missing from the database c is open
// against.
func UpdateDatabase(ctx context.Context, c *db.ConnContext, fsys fs.FS, logger log.Logger) error {
	conn := c.ConnectionRW()
	if conn == nil {
		return fmt.Errorf("%w: %w", ErrSchemaBootstrapFailed, db.ErrContextClosed)
	}
	return EnsureTables(ctx, conn, fsys, logger)
}

// Config represents the configuration for Init.
type Config struct {
	// Logger is the shared nsqlitectx logger.
	Logger log.Logger
	// Path is the program database file.
	Path string
	// Templates, if set, provides a template database copied to Path when
	// the database does not exist yet.
	Templates *Templates
	// DisableOptimizations is passed to the main connection context.
	DisableOptimizations bool
	// AssertOwner is passed to the main connection context.
	AssertOwner bool
}

// Init creates the program database if it doesn't exist, opens the main
// connection context against it, and creates any missing table.
func Init(ctx context.Context, config Config) (*db.ConnContext, error) {
	if !config.Logger.IsInitialized() {
		return nil, errors.New("logger is required")
	}
	if config.Path == "" {
		return nil, errors.New("database path is required")
	}

	created := false
	if _, err := os.Stat(config.Path); errors.Is(err, os.ErrNotExist) {
		if err := createFromTemplateOrScripts(ctx, config); err != nil {
			return nil, err
		}
		created = config.Templates == nil
	} else if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSchemaBootstrapFailed, err)
	}

	main, err := db.NewConnContext(ctx, db.Config{
		Logger:               config.Logger,
		Path:                 config.Path,
		DisableOptimizations: config.DisableOptimizations,
		AssertOwner:          config.AssertOwner,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to open global database connections: %w", err)
	}

	if !created {
		if err := UpdateDatabase(ctx, main, TablesFS, config.Logger); err != nil {
			_ = main.Close(ctx)
			return nil, err
		}
	}

	config.Logger.InfoNs(log.NsSchema, "database ready", log.KV{"path": config.Path})
	return main, nil
}

func createFromTemplateOrScripts(ctx context.Context, config Config) error {
	if config.Templates == nil {
		return CreateDatabase(ctx, config.Path, TablesFS, config.Logger)
	}

	if err := config.Templates.CopyTo(config.Path); err != nil {
		return fmt.Errorf("%w: %w", ErrSchemaBootstrapFailed, err)
	}
	config.Logger.InfoNs(log.NsSchema, "created database from template", log.KV{
		"path":     config.Path,
		"template": config.Templates.ResourcePath,
	})
	return nil
}
