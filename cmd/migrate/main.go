package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/pflag"

	"essence.app/db"
	"essence.app/internal/migrate"
	"essence.app/internal/obs"
)

const usage = "usage: migrate [--dsn DSN] [up|down|seed|status]"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		dsn     string
		timeout time.Duration
	)
	flags := pflag.NewFlagSet("migrate", pflag.ContinueOnError)
	flags.StringVar(&dsn, "dsn", os.Getenv("ESSENCE_PG_DSN"), "PostgreSQL DSN")
	flags.DurationVar(&timeout, "timeout", 30*time.Second, "overall deadline for the command")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if dsn == "" {
		return errors.New("missing DSN: provide via --dsn or ESSENCE_PG_DSN")
	}
	if flags.NArg() == 0 {
		return errors.New(usage)
	}
	logger := obs.Component("migrate")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer conn.Close()

	mgr := migrate.NewManager(conn, db.Migrations(), db.Seeds())

	cmd := flags.Arg(0)
	switch cmd {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "seed":
		err = mgr.Seed(ctx)
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		if err == nil {
			for _, item := range history {
				fmt.Println(item)
			}
		}
	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
	if err != nil {
		return fmt.Errorf("migrate %s: %w", cmd, err)
	}
	logger.Info().Str("command", cmd).Msg("done")
	return nil
}
