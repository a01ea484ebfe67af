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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/carverauto/proxyconsole/pkg/models"
)

const (
	outputTable = "table"
	outputJSON  = "json"

	defaultFilePerms = 0600
)

func newTable(w io.Writer) *tablewriter.Table {
	return tablewriter.NewTable(w,
		tablewriter.WithConfig(tablewriter.Config{
			Row: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoWrap: tw.WrapNone},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
			Header: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoFormat: tw.On},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
		}),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Separators: tw.Separators{ShowHeader: tw.Off},
			},
		}),
	)
}

func renderTable(w io.Writer, header []string, rows [][]string) error {
	table := newTable(w)
	table.Header(header)

	if err := table.Bulk(rows); err != nil {
		return err
	}

	return table.Render()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

func nodeRows(nodes []models.ProxyNode) [][]string {
	rows := make([][]string, 0, len(nodes))

	for i := range nodes {
		n := &nodes[i]
		rows = append(rows, []string{
			n.ID.String(),
			n.Name,
			n.Host + ":" + strconv.Itoa(n.Port),
			string(n.Protocol),
			string(n.Status),
			n.Country,
			formatMillis(n.ResponseTime),
		})
	}

	return rows
}

var nodeHeader = []string{"ID", "Name", "Address", "Protocol", "Status", "Country", "Latency"}

func logRows(records []models.LogRecord) [][]string {
	rows := make([][]string, 0, len(records))

	for i := range records {
		r := &records[i]
		rows = append(rows, []string{
			r.Timestamp.Local().Format(time.DateTime),
			r.Level,
			r.NodeID.String(),
			r.Message,
		})
	}

	return rows
}

var logHeader = []string{"Time", "Level", "Node", "Message"}

func formatMillis(ms float64) string {
	if ms <= 0 {
		return "-"
	}

	return strconv.FormatFloat(ms, 'f', 0, 64) + "ms"
}

// writeExport saves binary export content to path, or to w when path is "-".
func writeExport(w io.Writer, path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := w.Write(data)
		return err
	}

	if err := os.WriteFile(path, data, defaultFilePerms); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	return nil
}
