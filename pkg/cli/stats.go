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
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/carverauto/proxyconsole/pkg/models"
)

func newStatsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "stats",
		Aliases: []string{"statistics"},
		Short:   "Fetch traffic and proxy statistics",
		Long: `Statistics payloads are shown as the server returns them. Ranges are
daily (default), weekly or monthly.`,
	}

	cmd.AddCommand(
		newStatsTrafficCommand(a),
		newStatsProxiesCommand(a),
		newStatsNodeCommand(a),
		newStatsExportCommand(a),
	)

	return cmd
}

func parseRange(args []string) (models.TimeRange, error) {
	if len(args) == 0 {
		return models.RangeDaily, nil
	}

	switch r := models.TimeRange(args[0]); r {
	case models.RangeDaily, models.RangeWeekly, models.RangeMonthly:
		return r, nil
	default:
		return "", fmt.Errorf("%w: %q", errInvalidRange, args[0])
	}
}

type statsQueryFlags struct {
	since    time.Duration
	node     string
	protocol string
}

func (f *statsQueryFlags) register(fs *pflag.FlagSet) {
	fs.DurationVar(&f.since, "since", 0, "only include data newer than this (e.g. 24h)")
	fs.StringVar(&f.node, "node", "", "restrict to one proxy node")
	fs.StringVar(&f.protocol, "protocol", "", "restrict to one protocol")
}

func (f *statsQueryFlags) query(now time.Time) models.StatsQuery {
	q := models.StatsQuery{
		NodeID:   models.NodeID(f.node),
		Protocol: models.Protocol(f.protocol),
	}

	if f.since > 0 {
		start := now.Add(-f.since)
		q.Start = &start
	}

	return q
}

func newStatsTrafficCommand(a *app) *cobra.Command {
	var qf statsQueryFlags

	cmd := &cobra.Command{
		Use:   "traffic [RANGE]",
		Short: "Fleet-wide traffic for a range",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := parseRange(args)
			if err != nil {
				return err
			}

			c, err := a.stores()
			if err != nil {
				return err
			}

			entry, err := c.Statistics.FetchTraffic(cmd.Context(), r, qf.query(time.Now()))
			if err != nil {
				return err
			}

			return a.printEntry(entry)
		},
	}

	qf.register(cmd.Flags())

	return cmd
}

func newStatsProxiesCommand(a *app) *cobra.Command {
	var qf statsQueryFlags

	cmd := &cobra.Command{
		Use:   "proxies",
		Short: "Per-proxy statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.stores()
			if err != nil {
				return err
			}

			snap, err := c.Statistics.FetchProxyStats(cmd.Context(), qf.query(time.Now()))
			if err != nil {
				return err
			}

			if a.jsonOutput() {
				return writeJSON(a.out, snap)
			}

			for _, item := range snap.Items {
				if err := writeIndented(a.out, item); err != nil {
					return err
				}
			}

			_, err = fmt.Fprintf(a.out, "\n%d entries fetched at %s\n", len(snap.Items), snap.FetchedAt.Local().Format(time.DateTime))

			return err
		},
	}

	qf.register(cmd.Flags())

	return cmd
}

func newStatsNodeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "node ID [RANGE]",
		Short: "Traffic of one proxy node",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := parseRange(args[1:])
			if err != nil {
				return err
			}

			c, err := a.stores()
			if err != nil {
				return err
			}

			entry, err := c.Statistics.FetchNodeTraffic(cmd.Context(), models.NodeID(args[0]), r)
			if err != nil {
				return err
			}

			return a.printEntry(entry)
		},
	}
}

func newStatsExportCommand(a *app) *cobra.Command {
	var (
		qf   statsQueryFlags
		dest string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Download the statistics export",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.stores()
			if err != nil {
				return err
			}

			data, err := c.Statistics.Export(cmd.Context(), qf.query(time.Now()))
			if err != nil {
				return err
			}

			return writeExport(a.out, dest, data)
		},
	}

	qf.register(cmd.Flags())
	cmd.Flags().StringVarP(&dest, "file", "f", "-", "destination file, - for stdout")

	return cmd
}

func (a *app) printEntry(entry models.StatisticsEntry) error {
	if a.jsonOutput() {
		return writeJSON(a.out, entry)
	}

	_, _ = fmt.Fprintln(a.errOut, newLogStyles().info.Render("[INFO] "+entry.Key.String()))

	return writeIndented(a.out, entry.Payload)
}

func writeIndented(w io.Writer, raw json.RawMessage) error {
	if len(raw) == 0 {
		_, err := fmt.Fprintln(w, "null")
		return err
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return err
	}

	buf.WriteByte('\n')

	_, err := buf.WriteTo(w)

	return err
}
