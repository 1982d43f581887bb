package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"proxyfeed/internal/shared/logger"
	"proxyfeed/proxypool/storage"
	"proxyfeed/proxypool/validator"
)

type checkOptions struct {
	kind        string
	timeout     time.Duration
	concurrency int
	limit       int
	target      string
	geo         bool
	geoURL      string
	aliveOnly   bool
}

func newCheckCommand(root *rootOptions) *cobra.Command {
	opts := &checkOptions{}
	cmd := &cobra.Command{
		Use:   "check <regular|v2ray> <name>",
		Short: "Check the liveness (and optionally location) of the entries in a static proxy file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := root.loadApp()
			if err != nil {
				return err
			}
			role, err := storage.ParseRole(args[0])
			if err != nil {
				return err
			}
			content, err := s.Files().Lookup(role, args[1])
			if err != nil {
				return err
			}

			kind := validator.KindForFile(string(role), args[1])
			if opts.kind != "" {
				kind = validator.Kind(opts.kind)
			}
			lines := storage.Slice(storage.Lines(content), opts.limit)

			l := logger.WithComponent("CLI/Check")
			targets := make([]validator.Target, 0, len(lines))
			for _, line := range lines {
				t, err := validator.ParseTarget(line, kind)
				if err != nil {
					l.Warn().Err(err).Msg("Skipping entry.")
					continue
				}
				targets = append(targets, t)
			}

			v := validator.NewValidator(validator.Options{
				Timeout:     opts.timeout,
				Concurrency: opts.concurrency,
				CheckTarget: opts.target,
				Geo:         opts.geo,
				GeoURL:      opts.geoURL,
			})
			results := v.Validate(cmd.Context(), targets)

			if opts.aliveOnly {
				for _, r := range results {
					if r.Alive {
						fmt.Fprintln(cmd.OutOrStdout(), r.Raw)
					}
				}
				return nil
			}
			renderCheck(cmd.OutOrStdout(), results)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.kind, "kind", "", "override entry kind: http, socks5 or tcp")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "timeout per entry")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 20, "number of entries checked at once")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "check only the first N entries (0 checks all)")
	cmd.Flags().StringVar(&opts.target, "target", "", "host:port reached through http/socks5 proxies (default www.google.com:443)")
	cmd.Flags().BoolVar(&opts.geo, "geo", false, "look up the location of alive entries")
	cmd.Flags().StringVar(&opts.geoURL, "geo-url", "", "geolocation API prefix (default http://ip-api.com/json/)")
	cmd.Flags().BoolVar(&opts.aliveOnly, "alive-only", false, "print only the alive entries, one per line")
	return cmd
}

// renderCheck 以表格输出检查结果
func renderCheck(w io.Writer, results []validator.Result) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Address", "Kind", "Alive", "Latency", "Location"})
	alive := 0
	for i, r := range results {
		status, latency := "no", "-"
		if r.Alive {
			alive++
			status = "yes"
			latency = r.Latency.Round(time.Millisecond).String()
		}
		t.AppendRow(table.Row{i + 1, r.Address, r.Kind, status, latency, location(r)})
	}
	t.AppendFooter(table.Row{"", "", "alive", fmt.Sprintf("%d/%d", alive, len(results)), "", ""})
	t.Render()
}

func location(r validator.Result) string {
	var parts []string
	for _, p := range []string{r.Country, r.Region, r.City} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " / ")
}
