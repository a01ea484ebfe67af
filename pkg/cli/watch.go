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

package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	feedPath                 = "/feed"
	defaultReadHeaderTimeout = 10 * time.Second
	defaultIdleTimeout       = 60 * time.Second
)

func newWatchCommand(a *app) *cobra.Command {
	var (
		listen   string
		interval time.Duration
		quiet    bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Refresh the console periodically and serve the change feed",
		Long: `watch keeps the proxy list and statistics fresh and streams every state
change to WebSocket clients at ws://LISTEN/feed. Clients may pass
?topics=proxy.updated,busy to narrow the stream.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if listen == "" {
				listen = a.cfg.Feed.ListenAddr
			}

			if !cmd.Flags().Changed("interval") {
				interval = time.Duration(a.cfg.Feed.RefreshInterval)
			}

			ln, err := net.Listen("tcp", listen)
			if err != nil {
				return fmt.Errorf("listening on %s: %w", listen, err)
			}

			return a.watch(cmd.Context(), ln, interval, !quiet)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "feed listen address (overrides config)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "refresh interval (overrides config)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print events")

	return cmd
}

// watch serves the hub on ln and refreshes the console every interval until
// ctx is done.
func (a *app) watch(ctx context.Context, ln net.Listener, interval time.Duration, printEvents bool) error {
	if interval <= 0 {
		_ = ln.Close()
		return fmt.Errorf("%w: %s", errInvalidInterval, interval)
	}

	c, err := a.stores()
	if err != nil {
		_ = ln.Close()
		return err
	}

	mux := http.NewServeMux()
	mux.Handle(feedPath, a.hub)

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		IdleTimeout:       defaultIdleTimeout,
	}

	a.log.Info().
		Str("addr", ln.Addr().String()).
		Dur("interval", interval).
		Msg("Serving change feed")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		a.hub.Close()

		return srv.Shutdown(shutdownCtx)
	})

	if printEvents {
		events, cancel := a.hub.Subscribe()

		g.Go(func() error {
			defer cancel()

			for ev := range events {
				_, _ = fmt.Fprintf(a.out, "%s #%d %s\n",
					ev.Timestamp.Local().Format(time.TimeOnly), ev.Seq, ev.Topic)
			}

			return nil
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			// Failures were already shown by the notifier.
			if err := c.Refresh(ctx); err != nil && ctx.Err() == nil {
				a.log.Debug().Err(err).Msg("Refresh failed")
			}

			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})

	return g.Wait()
}
