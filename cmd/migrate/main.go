package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/settlement-engine/pkg/config"
	"github.com/angelmondragon/settlement-engine/pkg/db"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
	"github.com/angelmondragon/settlement-engine/pkg/migrate"
)

const usage = `usage: migrate <command> [args]

commands:
  up                 apply all pending migrations
  down               roll back the latest migration
  to <version>       migrate up or down to version (YYYYMMDDHHMMSS)
  status             list migrations and whether they are applied
  create <name>      write a new migration under -dir
  validate           check migration file names and goose markers in -dir
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	command, args := os.Args[1], os.Args[2:]

	flags := flag.NewFlagSet(command, flag.ExitOnError)
	dir := flags.String("dir", migrate.DefaultDir, "migration source directory for create and validate")
	_ = flags.Parse(args)

	switch command {
	case "create":
		if flags.NArg() != 1 {
			exitf("create needs exactly one name")
		}
		path, err := migrate.CreateSQLMigration(*dir, flags.Arg(0))
		if err != nil {
			exitf("create: %v", err)
		}
		fmt.Println("created", path)
		return
	case "validate":
		if err := migrate.ValidateDir(*dir); err != nil {
			exitf("validate: %v", err)
		}
		fmt.Println("migrations ok")
		return
	case "up", "down", "to", "status":
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		exitf("config: %v", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
	})
	ctx := logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env, "command": command})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		exitf("database: %v", err)
	}
	defer dbClient.Close()
	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		exitf("database: %v", err)
	}
	runner, err := migrate.NewRunner(sqlDB, migrate.Embedded())
	if err != nil {
		exitf("%v", err)
	}

	if err := run(ctx, runner, command, flags.Args(), os.Stdout); err != nil {
		logg.Error(ctx, "migration command failed", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, runner *migrate.Runner, command string, args []string, out io.Writer) error {
	var (
		applied []migrate.Applied
		err     error
	)
	switch command {
	case "up":
		applied, err = runner.Up(ctx)
	case "down":
		applied, err = runner.Down(ctx)
	case "to":
		if len(args) != 1 {
			return fmt.Errorf("to needs exactly one version")
		}
		target, perr := strconv.ParseInt(args[0], 10, 64)
		if perr != nil {
			return fmt.Errorf("version %q: %w", args[0], perr)
		}
		applied, err = runner.To(ctx, target)
	case "status":
		rows, serr := runner.Status(ctx)
		if serr != nil {
			return serr
		}
		return printStatus(out, rows)
	}
	for _, a := range applied {
		fmt.Fprintf(out, "%-4s %d %s (%s)\n", a.Direction, a.Version, a.File, a.Duration.Round(1e6))
	}
	if err == nil && len(applied) == 0 {
		fmt.Fprintln(out, "nothing to do")
	}
	return err
}

func printStatus(out io.Writer, rows []migrate.Status) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tSTATE\tAPPLIED AT\tFILE")
	for _, row := range rows {
		state, at := "pending", "-"
		if row.Applied {
			state, at = "applied", row.AppliedAt.UTC().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", row.Version, state, at, row.File)
	}
	return tw.Flush()
}

func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "migrate: "+format+"\n", args...)
	os.Exit(1)
}
