package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	manager "proxyfeed/proxypool"
	"proxyfeed/proxypool/assembler"
	"proxyfeed/proxypool/storage"
)

type scrapeOptions struct {
	count     int
	protocol  string
	decrypted bool
}

func (o *scrapeOptions) bind(cmd *cobra.Command) {
	cmd.Flags().IntVar(&o.count, "count", 0, "number of records (0 uses default_count from settings)")
	cmd.Flags().StringVar(&o.protocol, "protocol", "", "keep only records starting with this prefix, e.g. vless")
}

func newScrapeCommand(root *rootOptions) *cobra.Command {
	opts := &scrapeOptions{}
	cmd := &cobra.Command{
		Use:   "scrape <channel>",
		Short: "Collect records from a channel and print the subscription body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := root.loadApp()
			if err != nil {
				return err
			}
			collector := s.Collector()
			count := opts.count
			if count <= 0 {
				count = collector.FeedSettings().DefaultCount
			}

			ctx := manager.WithRequestID(cmd.Context(), uuid.NewString())
			records, err := collector.Collect(ctx, args[0], count, opts.protocol)
			if err != nil {
				return err
			}

			asm := s.Assembler()
			res := asm.Assemble(records, assembler.Options{
				Decrypted: opts.decrypted,
				Sentinel:  asm.Settings().SentinelTelegram,
			})
			_, err = io.WriteString(cmd.OutOrStdout(), res.Body)
			if err == nil && res.Body != "" {
				_, err = io.WriteString(cmd.OutOrStdout(), "\n")
			}
			return err
		},
	}
	opts.bind(cmd)
	cmd.Flags().BoolVar(&opts.decrypted, "decrypted", false, "print plain text instead of Base64")
	return cmd
}

func newInspectCommand(root *rootOptions) *cobra.Command {
	opts := &scrapeOptions{}
	cmd := &cobra.Command{
		Use:   "inspect <channel>",
		Short: "Collect records from a channel and show per-page statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := root.loadApp()
			if err != nil {
				return err
			}
			collector := s.Collector()
			count := opts.count
			if count <= 0 {
				count = collector.FeedSettings().DefaultCount
			}

			ctx := manager.WithRequestID(cmd.Context(), uuid.NewString())
			report, err := collector.Inspect(ctx, args[0], count, opts.protocol)
			renderReport(cmd.OutOrStdout(), report)
			return err
		},
	}
	opts.bind(cmd)
	return cmd
}

func newFilesCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "files [regular|v2ray]",
		Short:     "List the static proxy files that are served",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{string(storage.RoleRegular), string(storage.RoleV2ray)},
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := root.loadApp()
			if err != nil {
				return err
			}

			roles := []storage.Role{storage.RoleRegular, storage.RoleV2ray}
			if len(args) == 1 {
				role, err := storage.ParseRole(args[0])
				if err != nil {
					return err
				}
				roles = []storage.Role{role}
			}

			listing := make(map[storage.Role][]string, len(roles))
			for _, role := range roles {
				names, err := s.Files().List(role)
				if err != nil {
					return fmt.Errorf("failed to list %s files: %w", role, err)
				}
				listing[role] = names
			}
			renderFiles(cmd.OutOrStdout(), roles, listing)
			return nil
		},
	}
}

// renderReport 以表格输出每一页的抓取统计
func renderReport(w io.Writer, report *manager.Report) {
	if report == nil {
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle(fmt.Sprintf("%s  requested=%d budget=%d max_fetches=%d strategy=%s fetcher=%s",
		report.Channel, report.Requested, report.PageBudget, report.MaxFetches, report.Strategy, report.Fetcher))
	t.AppendHeader(table.Row{"#", "Cursor", "Next", "Messages", "Records", "Took"})
	for _, p := range report.Pages {
		t.AppendRow(table.Row{p.Index, cursorLabel(string(p.Cursor)), cursorLabel(string(p.NextCursor)), p.Messages, p.Records, p.Took.Round(time.Millisecond)})
	}
	t.AppendFooter(table.Row{"", "", "total", report.Extracted, len(report.Records), report.Took.Round(time.Millisecond)})
	t.Render()
}

func cursorLabel(c string) string {
	if c == "" {
		return "-"
	}
	return c
}

// renderFiles 以表格输出静态文件端点
func renderFiles(w io.Writer, roles []storage.Role, listing map[storage.Role][]string) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Role", "Endpoint", "Name"})
	for _, role := range roles {
		for _, name := range listing[role] {
			t.AppendRow(table.Row{role, "/proxies/" + string(role) + "/" + name, name})
		}
	}
	if t.Length() == 0 {
		fmt.Fprintln(w, "no files found under "+strings.Join(roleNames(roles), ", "))
		return
	}
	t.Render()
}

func roleNames(roles []storage.Role) []string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return names
}
