/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package cli implements proxyctl, a terminal front end for the proxy console
// stores.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/carverauto/proxyconsole/pkg/config"
	"github.com/carverauto/proxyconsole/pkg/feed"
	"github.com/carverauto/proxyconsole/pkg/gateway"
	"github.com/carverauto/proxyconsole/pkg/logger"
	"github.com/carverauto/proxyconsole/pkg/models"
	"github.com/carverauto/proxyconsole/pkg/store"
)

const shutdownTimeout = 5 * time.Second

// Version is stamped at build time.
var Version = "dev"

// app carries the state shared by every subcommand.
type app struct {
	out    io.Writer
	errOut io.Writer

	cfgFile string
	apiURL  string
	output  string
	verbose bool

	// httpClient replaces the gateway's client when set.
	httpClient gateway.HTTPClient

	cfg     *config.ConsoleConfig
	log     logger.Logger
	hub     *feed.Hub
	console *store.Console
	tp      *sdktrace.TracerProvider
}

// NewRootCommand builds the proxyctl command tree writing to out and errOut.
func NewRootCommand(out, errOut io.Writer) *cobra.Command {
	return newRootCommand(&app{out: out, errOut: errOut})
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "proxyctl",
		Short: "Manage a proxy fleet from the terminal",
		Long: `proxyctl talks to the proxy management API through the same stores the
console uses: one gateway, one notification per failure, and local state that
only changes after the server accepts a mutation.

Example usage:
  proxyctl proxies list --status active
  proxyctl proxies create 10.0.0.7:3128 --protocol http --name edge-7
  proxyctl stats traffic weekly
  proxyctl logs clear --level debug
  proxyctl watch --listen 127.0.0.1:8090`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.teardown(cmd.Context())
		},
	}

	root.SetOut(a.out)
	root.SetErr(a.errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "path to a JSON config file")
	flags.StringVar(&a.apiURL, "api-url", "", "management API base URL (overrides config)")
	flags.StringVarP(&a.output, "output", "o", outputTable, "output format: table or json")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newProxiesCommand(a),
		newStatsCommand(a),
		newLogsCommand(a),
		newWatchCommand(a),
	)

	return root
}

// Execute runs proxyctl with the process arguments. Gateway failures have
// already been shown by the notifier, so only other errors are printed.
func Execute(ctx context.Context) error {
	errOut := os.Stderr
	root := NewRootCommand(os.Stdout, errOut)

	err := root.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, gateway.ErrApplication) && !errors.Is(err, gateway.ErrTransport) {
		_, _ = fmt.Fprintln(errOut, newLogStyles().error.Render("[ERROR] "+err.Error()))
	}

	return err
}

func (a *app) setup(ctx context.Context) error {
	if a.output != outputTable && a.output != outputJSON {
		return fmt.Errorf("%w: %q", errUnknownOutput, a.output)
	}

	cfg := &config.ConsoleConfig{}
	if err := config.NewConfig(nil).LoadAndValidate(ctx, a.cfgFile, cfg); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if a.apiURL != "" {
		cfg.API.BaseURL = a.apiURL

		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	if a.verbose {
		cfg.Logging.Level = "debug"
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}

	if cfg.Logging.OTel.Enabled {
		a.tp, err = logger.InitializeTracing(ctx, logger.TracingConfig{
			ServiceName:    "proxyctl",
			ServiceVersion: Version,
			Logger:         log,
			OTel:           &cfg.Logging.OTel,
		})
		if err != nil {
			return fmt.Errorf("initializing tracing: %w", err)
		}
	}

	a.hub = feed.NewHub(feed.Config{
		Buffer:         cfg.Feed.Buffer,
		AllowedOrigins: cfg.Feed.AllowedOrigins,
		APIKey:         cfg.Feed.APIKey,
	}, log)

	gwCfg := cfg.GatewayConfig()
	gwCfg.HTTP = a.httpClient
	gwCfg.Notifier = NewTerminalNotifier(a.errOut)
	gwCfg.Indicator = NewTerminalIndicator(a.errOut)
	gwCfg.Logger = log

	gw, err := gateway.New(gwCfg)
	if err != nil {
		return err
	}

	a.console, err = store.NewConsole(gw, store.Options{
		Publisher:     a.hub,
		Logger:        log,
		NodeCacheSize: cfg.Statistics.NodeCacheSize,
	})
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.log = log

	if safe, err := models.FilterSensitiveFields(cfg); err == nil {
		log.Debug().Interface("config", safe).Msg("proxyctl initialized")
	}

	return nil
}

func (a *app) teardown(ctx context.Context) error {
	if a.hub != nil {
		a.hub.Close()
	}

	if a.tp == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	return a.tp.Shutdown(ctx)
}

// stores returns the console or errNotInitialized when setup did not run.
func (a *app) stores() (*store.Console, error) {
	if a.console == nil {
		return nil, errNotInitialized
	}

	return a.console, nil
}

func (a *app) jsonOutput() bool {
	return a.output == outputJSON
}

func (a *app) success(msg string) {
	_, _ = fmt.Fprintln(a.errOut, newLogStyles().success.Render("[SUCCESS] "+msg))
}
