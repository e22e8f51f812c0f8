package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"

	"github.com/hamchapman/jottly/internal/app"
)

const usage = `usage: jottly <command> [flags]

commands:
  agent   run the location and steps agent
  serve   run the ingest server
  logs    print the persisted agent log
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	command, rest := args[0], args[1:]

	fs := flag.NewFlagSet("jottly "+command, flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "config file path (optional, defaults to ~/.config/jottly/config.toml)")
	envFile := fs.String("env-file", "", "dotenv file loaded before the environment (optional, defaults to .env)")

	var (
		replayPath *string
		logsOpts   app.LogsOptions
		noColor    *bool
	)
	switch command {
	case "agent":
		replayPath = fs.String("replay", "", "replay file of fixes and step counts (overrides replay.path)")
	case "serve":
	case "logs":
		fs.IntVar(&logsOpts.Limit, "n", 100, "number of entries to show (0 for all)")
		fs.StringVar(&logsOpts.Level, "level", "", "minimum level: verbose, debug, info, warning, error")
		fs.StringVar(&logsOpts.Contains, "grep", "", "only show entries containing this text")
		noColor = fs.Bool("no-color", false, "disable colored output")
	case "-h", "-help", "--help", "help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "jottly: unknown command %q\n\n%s", command, usage)
		return 2
	}
	if err := fs.Parse(rest); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts := app.Options{ConfigPath: *configPath, EnvFile: *envFile, Stderr: stderr}

	var err error
	switch command {
	case "agent":
		opts.ReplayPath = *replayPath
		err = app.RunAgent(ctx, opts)
	case "serve":
		err = app.RunServer(ctx, opts)
	case "logs":
		logsOpts.Color = !*noColor && isTerminal(stdout)
		err = app.ShowLogs(ctx, opts, stdout, logsOpts)
	}
	if err != nil {
		fmt.Fprintf(stderr, "jottly: %v\n", err)
		return 1
	}
	return 0
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}
