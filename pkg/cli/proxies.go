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
	"net"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/carverauto/proxyconsole/pkg/models"
)

func newProxiesCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "proxies",
		Aliases: []string{"proxy", "px"},
		Short:   "List and manage proxy nodes",
	}

	cmd.AddCommand(
		newProxiesListCommand(a),
		newProxiesGetCommand(a),
		newProxiesCreateCommand(a),
		newProxiesUpdateCommand(a),
		newProxiesDeleteCommand(a),
		newProxiesTestCommand(a),
		newProxiesImportCommand(a),
		newProxiesExportCommand(a),
	)

	return cmd
}

type filterFlags struct {
	page, pageSize            int
	status, protocol, country string
	search                    string
}

func (f *filterFlags) register(fs *pflag.FlagSet) {
	fs.IntVar(&f.page, "page", 0, "page number")
	fs.IntVar(&f.pageSize, "page-size", 0, "page size")
	fs.StringVar(&f.status, "status", "", "filter by status")
	fs.StringVar(&f.protocol, "protocol", "", "filter by protocol")
	fs.StringVar(&f.country, "country", "", "filter by country")
	fs.StringVar(&f.search, "search", "", "free-text search")
}

func (f *filterFlags) filter() models.ProxyFilter {
	return models.ProxyFilter{
		Page:     f.page,
		PageSize: f.pageSize,
		Status:   models.ProxyStatus(f.status),
		Protocol: models.Protocol(f.protocol),
		Country:  f.country,
		Search:   f.search,
	}
}

func newProxiesListCommand(a *app) *cobra.Command {
	var ff filterFlags

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List proxy nodes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.stores()
			if err != nil {
				return err
			}

			if _, err := c.Proxies.List(cmd.Context(), ff.filter()); err != nil {
				return err
			}

			nodes, counters := c.Proxies.Nodes(), c.Proxies.Counters()

			if a.jsonOutput() {
				return writeJSON(a.out, struct {
					Items    []models.ProxyNode `json:"items"`
					Counters models.Counters    `json:"counters"`
				}{nodes, counters})
			}

			if err := renderTable(a.out, nodeHeader, nodeRows(nodes)); err != nil {
				return err
			}

			_, err = fmt.Fprintf(a.out, "\nTotal: %d  Active: %d\n", counters.Total, counters.Active)

			return err
		},
	}

	ff.register(cmd.Flags())

	return cmd
}

func newProxiesGetCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Show one proxy node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.stores()
			if err != nil {
				return err
			}

			node, err := c.Proxies.Get(cmd.Context(), models.NodeID(args[0]))
			if err != nil {
				return err
			}

			return a.printNode(node)
		},
	}
}

type draftFlags struct {
	name, protocol, username, password string
	status, country, region, tags      string
	weight, maxConnections             int
}

func (d *draftFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&d.name, "name", "", "display name")
	fs.StringVar(&d.protocol, "protocol", string(models.ProtocolHTTP), "http, https, socks4 or socks5")
	fs.StringVar(&d.username, "username", "", "upstream username")
	fs.StringVar(&d.password, "password", "", "upstream password")
	fs.StringVar(&d.status, "status", "", "initial status")
	fs.StringVar(&d.country, "country", "", "country code")
	fs.StringVar(&d.region, "region", "", "region")
	fs.StringVar(&d.tags, "tags", "", "comma-separated tags")
	fs.IntVar(&d.weight, "weight", 0, "load-balancing weight")
	fs.IntVar(&d.maxConnections, "max-connections", 0, "connection limit")
}

func parseAddress(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil || host == "" {
		return "", 0, fmt.Errorf("%w: %q", errInvalidAddress, addr)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("%w: %q", errInvalidAddress, addr)
	}

	return host, port, nil
}

func parseProtocol(s string) (models.Protocol, error) {
	p := models.Protocol(s)
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", errInvalidProtocol, s)
	}

	return p, nil
}

func newProxiesCreateCommand(a *app) *cobra.Command {
	var df draftFlags

	cmd := &cobra.Command{
		Use:   "create HOST:PORT",
		Short: "Register a proxy node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			host, port, err := parseAddress(args[0])
			if err != nil {
				return err
			}

			protocol, err := parseProtocol(df.protocol)
			if err != nil {
				return err
			}

			c, err := a.stores()
			if err != nil {
				return err
			}

			node, err := c.Proxies.Create(cmd.Context(), models.ProxyDraft{
				Name:           df.name,
				Host:           host,
				Port:           port,
				Protocol:       protocol,
				Username:       df.username,
				Password:       df.password,
				Status:         models.ProxyStatus(df.status),
				Weight:         df.weight,
				MaxConnections: df.maxConnections,
				Country:        df.country,
				Region:         df.region,
				Tags:           df.tags,
			})
			if err != nil {
				return err
			}

			a.success("created proxy " + node.ID.String())

			return a.printNode(node)
		},
	}

	df.register(cmd.Flags())

	return cmd
}

func newProxiesUpdateCommand(a *app) *cobra.Command {
	var (
		df      draftFlags
		address string
	)

	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Change fields of a proxy node",
		Long:  "Only flags given on the command line are sent; everything else is left as is.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := buildPatch(cmd.Flags(), &df, address)
			if err != nil {
				return err
			}

			c, err := a.stores()
			if err != nil {
				return err
			}

			node, err := c.Proxies.Update(cmd.Context(), models.NodeID(args[0]), patch)
			if err != nil {
				return err
			}

			a.success("updated proxy " + node.ID.String())

			return a.printNode(node)
		},
	}

	df.register(cmd.Flags())
	cmd.Flags().StringVar(&address, "address", "", "new HOST:PORT")

	return cmd
}

func buildPatch(fs *pflag.FlagSet, df *draftFlags, address string) (models.ProxyPatch, error) {
	var patch models.ProxyPatch

	changed := false
	str := func(name, value string) *string {
		if !fs.Changed(name) {
			return nil
		}

		changed = true

		return &value
	}
	num := func(name string, value int) *int {
		if !fs.Changed(name) {
			return nil
		}

		changed = true

		return &value
	}

	patch.Name = str("name", df.name)
	patch.Username = str("username", df.username)
	patch.Password = str("password", df.password)
	patch.Country = str("country", df.country)
	patch.Region = str("region", df.region)
	patch.Tags = str("tags", df.tags)
	patch.Weight = num("weight", df.weight)
	patch.MaxConnections = num("max-connections", df.maxConnections)

	if fs.Changed("status") {
		s := models.ProxyStatus(df.status)
		patch.Status = &s
		changed = true
	}

	if fs.Changed("protocol") {
		p, err := parseProtocol(df.protocol)
		if err != nil {
			return patch, err
		}

		patch.Protocol = &p
		changed = true
	}

	if address != "" {
		host, port, err := parseAddress(address)
		if err != nil {
			return patch, err
		}

		patch.Host, patch.Port = &host, &port
		changed = true
	}

	if !changed {
		return patch, errEmptyPatch
	}

	return patch, nil
}

func newProxiesDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "delete ID",
		Aliases: []string{"rm"},
		Short:   "Remove a proxy node",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.stores()
			if err != nil {
				return err
			}

			if err := c.Proxies.Delete(cmd.Context(), models.NodeID(args[0])); err != nil {
				return err
			}

			a.success("deleted proxy " + args[0])

			return nil
		},
	}
}

func newProxiesTestCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "test ID",
		Short: "Ask the server to probe a proxy node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.stores()
			if err != nil {
				return err
			}

			result, err := c.Proxies.Test(cmd.Context(), models.NodeID(args[0]))
			if err != nil {
				return err
			}

			if a.jsonOutput() {
				return writeJSON(a.out, result)
			}

			styles := newLogStyles()
			if !result.Success {
				_, err = fmt.Fprintln(a.out, styles.error.Render("FAILED "+result.ErrorMessage))
				return err
			}

			_, err = fmt.Fprintln(a.out, styles.success.Render("OK "+formatMillis(result.ResponseTime)))

			return err
		},
	}
}

// readDrafts accepts either a JSON array of drafts or {"items": [...]}.
func readDrafts(path string) ([]models.ProxyDraft, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	data = bytes.TrimSpace(data)

	var drafts []models.ProxyDraft

	if len(data) > 0 && data[0] == '[' {
		err = json.Unmarshal(data, &drafts)
	} else {
		var req models.BatchImportRequest

		err = json.Unmarshal(data, &req)
		drafts = req.Items
	}

	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if len(drafts) == 0 {
		return nil, errEmptyImport
	}

	return drafts, nil
}

func newProxiesImportCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Batch-import proxy nodes from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			drafts, err := readDrafts(args[0])
			if err != nil {
				return err
			}

			c, err := a.stores()
			if err != nil {
				return err
			}

			result, err := c.Proxies.BatchImport(cmd.Context(), drafts)
			if err != nil {
				return err
			}

			if a.jsonOutput() {
				return writeJSON(a.out, result)
			}

			a.success(fmt.Sprintf("imported %d, failed %d", result.Imported, result.Failed))

			for _, msg := range result.Errors {
				_, _ = fmt.Fprintln(a.errOut, newLogStyles().warning.Render("[WARN] "+msg))
			}

			return renderTable(a.out, nodeHeader, nodeRows(result.Items))
		},
	}
}

func newProxiesExportCommand(a *app) *cobra.Command {
	var (
		ff   filterFlags
		dest string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Download the proxy list export",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.stores()
			if err != nil {
				return err
			}

			data, err := c.Proxies.Export(cmd.Context(), ff.filter())
			if err != nil {
				return err
			}

			return writeExport(a.out, dest, data)
		},
	}

	ff.register(cmd.Flags())
	cmd.Flags().StringVarP(&dest, "file", "f", "-", "destination file, - for stdout")

	return cmd
}

func (a *app) printNode(node models.ProxyNode) error {
	if a.jsonOutput() {
		return writeJSON(a.out, node)
	}

	return renderTable(a.out, nodeHeader, nodeRows([]models.ProxyNode{node}))
}
