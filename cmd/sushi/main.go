// cmd/sushi/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"text/tabwriter"

	_ "github.com/joho/godotenv/autoload"

	"github.com/jason-s-yu/sushi/internal/api"
	"github.com/jason-s-yu/sushi/internal/config"
)

// exitAuth tells wrapper scripts to send the player back to login.
const exitAuth = 2

const usage = `usage:
  sushi list
  sushi create -name NAME [-duration SECONDS] [-players N]
  sushi play SESSION_ID`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, usage)
		return 1
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(errOut, "config: %v\n", err)
		return 1
	}
	logger := cfg.NewLogger()
	logger.SetOutput(errOut)

	client := api.NewClient(api.Config{
		BaseURL: cfg.APIURL,
		Token:   cfg.Token,
		Timeout: cfg.RequestTimeout,
		Logger:  logger,
	})

	switch args[0] {
	case "list":
		err = listSessions(ctx, client, out)
	case "create":
		err = createSession(ctx, client, args[1:], out, errOut)
	case "play":
		err = play(ctx, cfg, client, logger, args[1:], in, out)
	default:
		fmt.Fprintln(errOut, usage)
		return 1
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, api.ErrAuth):
		fmt.Fprintln(errOut, "Your credential was refused or has expired. Log in again and update SUSHI_TOKEN.")
		return exitAuth
	case errors.Is(err, flag.ErrHelp):
		return 1
	default:
		fmt.Fprintf(errOut, "error: %v\n", err)
		return 1
	}
}

func listSessions(ctx context.Context, client *api.Client, out io.Writer) error {
	sessions, err := client.ListSessions(ctx)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No open sessions.")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPLAYERS\t")
	for _, s := range sessions {
		seats := fmt.Sprintf("%d/%d", s.CurrentPlayerCount.Int64(), s.MaxPlayerCount.Int64())
		if s.Full() {
			seats += " (full)"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t\n", s.ID.Int64(), s.Name, seats)
	}
	return tw.Flush()
}

func createSession(ctx context.Context, client *api.Client, args []string, out, errOut io.Writer) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	fs.SetOutput(errOut)
	name := fs.String("name", "", "session name")
	duration := fs.Int("duration", 30, "seconds per turn")
	players := fs.Int("players", 4, "maximum number of players")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return errors.New("create: -name is required")
	}
	if *duration <= 0 || *players < 2 {
		return fmt.Errorf("create: need a positive duration and at least 2 players")
	}

	id, err := client.CreateSession(ctx, *name, *duration, *players)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Created session %d. Join it with: sushi play %d\n", id, id)
	return nil
}
