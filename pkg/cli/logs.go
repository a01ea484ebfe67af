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
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/carverauto/proxyconsole/pkg/models"
)

func newLogsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Query, clear and export proxy logs",
	}

	cmd.AddCommand(
		newLogsListCommand(a),
		newLogsClearCommand(a),
		newLogsExportCommand(a),
	)

	return cmd
}

type logQueryFlags struct {
	page, pageSize int
	level, node    string
	keyword        string
	since          time.Duration
}

func (f *logQueryFlags) register(fs *pflag.FlagSet) {
	fs.IntVar(&f.page, "page", 0, "page number")
	fs.IntVar(&f.pageSize, "page-size", 0, "page size")
	fs.StringVar(&f.level, "level", "", "filter by level")
	fs.StringVar(&f.node, "node", "", "filter by proxy node")
	fs.StringVar(&f.keyword, "keyword", "", "filter by keyword")
	fs.DurationVar(&f.since, "since", 0, "only records newer than this (e.g. 1h)")
}

func (f *logQueryFlags) query(now time.Time) models.LogQuery {
	q := models.LogQuery{
		Page:     f.page,
		PageSize: f.pageSize,
		Level:    f.level,
		NodeID:   models.NodeID(f.node),
		Keyword:  f.keyword,
	}

	if f.since > 0 {
		start := now.Add(-f.since)
		q.Start = &start
	}

	return q
}

func newLogsListCommand(a *app) *cobra.Command {
	var qf logQueryFlags

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show a page of log records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.stores()
			if err != nil {
				return err
			}

			page, err := c.Logs.List(cmd.Context(), qf.query(time.Now()))
			if err != nil {
				return err
			}

			if a.jsonOutput() {
				return writeJSON(a.out, page)
			}

			if err := renderTable(a.out, logHeader, logRows(page.Items)); err != nil {
				return err
			}

			_, err = fmt.Fprintf(a.out, "\nShowing %d of %d\n", len(page.Items), page.Total)

			return err
		},
	}

	qf.register(cmd.Flags())

	return cmd
}

func newLogsClearCommand(a *app) *cobra.Command {
	var (
		level, node string
		olderThan   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete log records on the server",
		Long:  "Without flags every record is deleted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := models.LogClearRequest{Level: level, NodeID: models.NodeID(node)}

			if olderThan > 0 {
				before := time.Now().Add(-olderThan)
				req.Before = &before
			}

			c, err := a.stores()
			if err != nil {
				return err
			}

			if err := c.Logs.Clear(cmd.Context(), req); err != nil {
				return err
			}

			a.success("logs cleared")

			return nil
		},
	}

	cmd.Flags().StringVar(&level, "level", "", "only clear this level")
	cmd.Flags().StringVar(&node, "node", "", "only clear records of this node")
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "only clear records older than this")

	return cmd
}

func newLogsExportCommand(a *app) *cobra.Command {
	var (
		qf   logQueryFlags
		dest string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Download the log export",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.stores()
			if err != nil {
				return err
			}

			data, err := c.Logs.Export(cmd.Context(), qf.query(time.Now()))
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
