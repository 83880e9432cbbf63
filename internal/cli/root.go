// Package cli implements procurectl, which replays YAML drafts through the line
// editor and exports procurement reports.
package cli

import (
	"fmt"
	"io"
	"os"

	"backoffice/internal/config"
	"backoffice/internal/httpclient"
	"backoffice/internal/logger"
	"backoffice/internal/upstream"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X backoffice/internal/cli.Version=...".
var (
	Version   = "dev"
	BuildDate = "unknown"
)

// App holds what the commands need. Config and API are resolved lazily so tests
// can inject them.
type App struct {
	Out    io.Writer
	Config *config.Configuration
	API    upstream.API
	Log    *logger.Logger

	cfgFile string
	token   string
	verbose bool
}

func NewRootCommand(app *App) *cobra.Command {
	if app.Out == nil {
		app.Out = os.Stdout
	}

	root := &cobra.Command{
		Use:   "procurectl",
		Short: "Edit purchase invoices and inbound deliveries from the command line",
		Long: `procurectl replays YAML drafts through the same line editor the back office uses,
validates them and submits them to the procurement API.

Example Usage:
  procurectl draft check --file draft.yaml
  procurectl draft submit --file draft.yaml --token $TOKEN
  procurectl report invoices --out invoices.xlsx`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().StringVar(&app.cfgFile, "config", "", "Path to the configuration file (default config.yaml)")
	root.PersistentFlags().StringVar(&app.token, "token", os.Getenv("BACKOFFICE_TOKEN"), "Bearer token forwarded to the API")
	root.PersistentFlags().BoolVarP(&app.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(newDraftCommand(app), newReportCommand(app), newVersionCommand(app))
	return root
}

// Execute runs procurectl with the default wiring.
func Execute() {
	if err := NewRootCommand(&App{}).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (a *App) setup() error {
	if a.Log == nil {
		level := "warn"
		if a.verbose {
			level = "debug"
		}
		log, err := logger.NewLogger(level)
		if err != nil {
			return err
		}
		a.Log = log
	}

	if a.Config == nil {
		cfg, err := config.NewConfig(a.cfgFile)
		if err != nil {
			return err
		}
		a.Config = cfg
	}

	if a.API == nil {
		transport := httpclient.NewRetryClient(httpclient.ClientConfig{
			Timeout:      a.Config.Upstream.Timeout,
			RetryMax:     a.Config.Upstream.RetryMax,
			RetryWaitMin: a.Config.Upstream.RetryWaitMin,
			RetryWaitMax: a.Config.Upstream.RetryWaitMax,
		}, a.Log)
		a.API = upstream.NewClient(a.Config.Upstream.BaseURL, transport)
	}
	return nil
}

func newVersionCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Display the application version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(app.Out, "procurectl %s (built %s)\n", Version, BuildDate)
		},
	}
}
