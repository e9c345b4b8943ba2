package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/civicconnect/civic-backend/pkg/config"
	"github.com/civicconnect/civic-backend/pkg/db"
	"github.com/civicconnect/civic-backend/pkg/logger"
	"github.com/civicconnect/civic-backend/pkg/migrate"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

func main() {
	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "migration command: up|down|status|version|create|validate")
	dir := flag.String("dir", "", "migrations directory (default: the set built into this binary)")
	name := flag.String("name", "", "migration name (for create)")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	// create and validate work on files only, so they run without config.
	switch *cmd {
	case "create":
		if *name == "" {
			exit("missing -name for create")
		}
		target := *dir
		if target == "" {
			target = migrate.DefaultDir
		}
		path, err := migrate.CreateSQLMigration(target, *name, time.Now())
		if err != nil {
			exit("create migration: %v", err)
		}
		fmt.Println("created migration:", path)
		return
	case "validate":
		fsys, err := migrate.Source(*dir)
		if err == nil {
			err = migrate.ValidateFS(fsys)
		}
		if err != nil {
			exit("migration validation failed: %v", err)
		}
		fmt.Println("migration validation passed")
		return
	}

	bootLog := logger.New(logger.Options{ServiceName: "migrate"})
	cfg, err := config.Load()
	if err != nil {
		bootLog.Error(context.Background(), "config.load_failed", err)
		os.Exit(1)
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":    cfg.App.Env,
		"cmd":    *cmd,
		"driver": cfg.DB.Driver,
	})

	if cfg.DB.IsSQLite() {
		runSQLite(ctx, logg, cfg, *cmd)
		return
	}

	sqlDB, err := sql.Open("postgres", cfg.DB.DSN)
	if err != nil {
		fail(ctx, logg, "database.open_failed", err)
	}
	defer sqlDB.Close()
	if err := sqlDB.PingContext(ctx); err != nil {
		fail(ctx, logg, "database.unreachable", err)
	}

	fsys, err := migrate.Source(*dir)
	if err != nil {
		fail(ctx, logg, "migrate.source_failed", err)
	}
	m, err := migrate.New(sqlDB, fsys, os.Stdout)
	if err != nil {
		fail(ctx, logg, "migrate.init_failed", err)
	}

	switch *cmd {
	case "up":
		err = m.Up(ctx)
	case "down":
		err = m.Down(ctx)
	case "status":
		err = m.Status(ctx)
	case "version":
		if *version == "" {
			exit("missing -version for version command")
		}
		err = m.To(ctx, *version)
	default:
		exit("unknown -cmd value: %s", *cmd)
	}
	if err != nil {
		fail(ctx, logg, "migrate.failed", err)
	}
	logg.Info(ctx, "migrate.done")
}

// runSQLite applies the mirrored schema. Only "up" makes sense for it.
func runSQLite(ctx context.Context, logg *logger.Logger, cfg *config.Config, cmd string) {
	if cmd != "up" {
		exit("-cmd=%s is not supported on sqlite", cmd)
	}
	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		fail(ctx, logg, "database.open_failed", err)
	}
	defer client.Close()
	if err := migrate.ApplySQLiteSchema(client.DB()); err != nil {
		fail(ctx, logg, "migrate.failed", err)
	}
	logg.Info(ctx, "migrate.done")
}

func fail(ctx context.Context, logg *logger.Logger, msg string, err error) {
	logg.Error(ctx, msg, err)
	os.Exit(1)
}

func exit(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
