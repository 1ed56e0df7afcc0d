package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/payouts-backend/pkg/config"
	"github.com/angelmondragon/payouts-backend/pkg/db"
	"github.com/angelmondragon/payouts-backend/pkg/logger"
	"github.com/angelmondragon/payouts-backend/pkg/migrate"
)

const serviceKind = "payouts-migrate"

type options struct {
	cmd     string
	dir     string
	name    string
	version string
}

// source is the -dir tree when given, otherwise the migrations built into this binary.
func (o options) source() fs.FS {
	if o.dir == "" {
		return migrate.Embedded()
	}
	return os.DirFS(o.dir)
}

type dbCommand func(ctx context.Context, m *migrate.Migrator, opts options) error

var dbCommands = map[string]dbCommand{
	"up": func(ctx context.Context, m *migrate.Migrator, _ options) error {
		res, err := m.Up(ctx)
		printResults(res...)
		return err
	},
	"down": func(ctx context.Context, m *migrate.Migrator, _ options) error {
		res, err := m.Down(ctx)
		if res != nil {
			printResults(res)
		}
		return err
	},
	"status": func(ctx context.Context, m *migrate.Migrator, _ options) error {
		statuses, err := m.Status(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "VERSION\tSTATE\tAPPLIED AT\tFILE")
		for _, s := range statuses {
			applied := "-"
			if !s.AppliedAt.IsZero() {
				applied = s.AppliedAt.UTC().Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.Source.Version, s.State, applied, s.Source.Path)
		}
		return tw.Flush()
	},
	"version": func(ctx context.Context, m *migrate.Migrator, opts options) error {
		target, err := migrate.ParseVersion(opts.version)
		if err != nil {
			return err
		}
		res, err := m.To(ctx, target)
		printResults(res...)
		return err
	},
}

func printResults(results ...*goose.MigrationResult) {
	for _, r := range results {
		fmt.Printf("%-4s %d %s (%s)\n", r.Direction, r.Source.Version, r.Source.Path, r.Duration)
	}
}

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceKind})
	_ = godotenv.Load()

	var opts options
	flag.StringVar(&opts.cmd, "cmd", "up", "migration command: up|down|status|version|create|validate")
	flag.StringVar(&opts.dir, "dir", "", "migrations directory (default: migrations embedded in the binary)")
	flag.StringVar(&opts.name, "name", "", "migration name (for create)")
	flag.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	// create and validate work on files only, so they run without config or a database
	if out, handled, err := runOffline(opts); handled {
		if err != nil {
			logg.Error(context.Background(), fmt.Sprintf("migrate %s failed", opts.cmd), err)
			os.Exit(1)
		}
		fmt.Println(out)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "resource not working: config", err)
		os.Exit(1)
	}
	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": opts.cmd,
		"dir": opts.dir,
	})

	if err := runOnline(ctx, cfg, logg, opts); err != nil {
		logg.Error(ctx, fmt.Sprintf("migrate %s failed", opts.cmd), err)
		os.Exit(1)
	}
	logg.Info(ctx, "migrate finished")
}

func runOffline(opts options) (string, bool, error) {
	switch opts.cmd {
	case "create":
		if opts.name == "" {
			return "", true, fmt.Errorf("missing -name for create")
		}
		dir := opts.dir
		if dir == "" {
			dir = migrate.DefaultDir
		}
		path, err := migrate.CreateSQLMigration(dir, opts.name)
		if err != nil {
			return "", true, err
		}
		return "created migration: " + path, true, nil
	case "validate":
		if err := migrate.ValidateFS(opts.source()); err != nil {
			return "", true, err
		}
		return "migration validation passed", true, nil
	}
	return "", false, nil
}

func runOnline(ctx context.Context, cfg *config.Config, logg *logger.Logger, opts options) error {
	command, ok := dbCommands[opts.cmd]
	if !ok {
		return fmt.Errorf("unknown -cmd value %q", opts.cmd)
	}
	fsys := opts.source()
	if err := migrate.ValidateFS(fsys); err != nil {
		return fmt.Errorf("validate migrations: %w", err)
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer dbClient.Close()

	var sqlDB *sql.DB
	if sqlDB, err = dbClient.DB().DB(); err != nil {
		return fmt.Errorf("sql database: %w", err)
	}
	m, err := migrate.NewMigrator(sqlDB, fsys)
	if err != nil {
		return err
	}

	logg.Info(ctx, "migrate ready")
	return command(ctx, m, opts)
}
