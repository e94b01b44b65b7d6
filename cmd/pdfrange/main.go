package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ligustah/pdfrange/internal/config"
	pdfhttp "github.com/ligustah/pdfrange/internal/http"
	"github.com/ligustah/pdfrange/internal/logging"
	"github.com/ligustah/pdfrange/internal/progress"
)

// Exit codes
const (
	ExitSuccess           = 0
	ExitGeneralError      = 1
	ExitInvalidArgs       = 2
	ExitSourceNotAccess   = 3
	ExitRangeNotSupported = 4
	ExitStorageError      = 5
	ExitIncomplete        = 6
	ExitValidationFailed  = 7
)

// Swapped out in tests.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
	stdin  io.Reader = os.Stdin
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return ExitInvalidArgs
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "probe":
		return runProbe(cmdArgs)
	case "info":
		return runInfo(cmdArgs)
	case "fetch":
		return runFetch(cmdArgs)
	case "validate":
		return runValidate(cmdArgs)
	case "delete":
		return runDelete(cmdArgs)
	case "serve":
		return runServe(cmdArgs)
	case "help", "-h", "--help":
		printUsage()
		return ExitSuccess
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", command)
		printUsage()
		return ExitInvalidArgs
	}
}

func printUsage() {
	fmt.Fprintln(stderr, `Usage: pdfrange <command> [options]

Commands:
  probe     Report whether a remote PDF is linearized
  info      Show size, range support and linearization of a remote PDF
  fetch     Fetch a remote PDF range by range into a file or object storage
  validate  Verify a PDF stored in object storage is complete
  delete    Remove a stored PDF and all its ranges from object storage
  serve     Run the viewer HTTP API

Run 'pdfrange <command> -h' for command-specific help.`)
}

// commonFlags are accepted by every command that talks to a source.
type commonFlags struct {
	configPath    string
	logLevel      string
	logFormat     string
	timeout       time.Duration
	retryAttempts int
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "Path to YAML config file")
	fs.StringVar(&c.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.StringVar(&c.logFormat, "log-format", "", "Log format: text or json")
	fs.DurationVar(&c.timeout, "timeout", 0, "Per-request timeout (0 for none)")
	fs.IntVar(&c.retryAttempts, "retry-attempts", 0, "Extra attempts after a failed request")
}

// newFlagSet returns a flag set that reports errors instead of exiting.
func newFlagSet(name, usage string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, usage)
		fmt.Fprintln(stderr, "\nOptions:")
		fs.PrintDefaults()
	}
	return fs
}

// parseFlags parses args and maps the outcome to an exit code; ok is false
// when the command should stop.
func parseFlags(fs *flag.FlagSet, args []string) (code int, ok bool) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitSuccess, false
		}
		return ExitInvalidArgs, false
	}
	return ExitSuccess, true
}

// loadConfig layers defaults, the config file, PDFRANGE_* variables and
// command-line overrides, in that order.
func loadConfig(common commonFlags, override config.Config) (config.Config, error) {
	cfg := config.Default()
	if common.configPath != "" {
		var err error
		cfg, err = config.LoadFromFile(common.configPath)
		if err != nil {
			return config.Config{}, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, err
	}

	override.Log.Level = common.logLevel
	override.Log.Format = common.logFormat
	override.Timeout = common.timeout
	override.Retry.Attempts = common.retryAttempts
	cfg = cfg.Merge(override)

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newLogger(cfg config.Config) *slog.Logger {
	return logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: stderr,
	})
}

func newClient(cfg config.Config) *pdfhttp.Client {
	return pdfhttp.NewClient(pdfhttp.Options{
		MaxIdleConnsPerHost: cfg.Concurrency * 2,
		Timeout:             cfg.Timeout,
		RetryAttempts:       cfg.Retry.Attempts,
		RetryBackoff:        cfg.Retry.Backoff,
		RetryMaxBackoff:     cfg.Retry.MaxBackoff,
	})
}

// parseSize parses a human-readable size flag; empty means unset.
func parseSize(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return progress.ParseBytes(s)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(announce bool) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			if announce {
				fmt.Fprintln(stderr, "\n[pdfrange] Received interrupt, shutting down...")
			}
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}
