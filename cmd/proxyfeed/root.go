package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"proxyfeed/internal/app"
	"proxyfeed/internal/shared/logger"
)

// rootOptions 是所有子命令共享的参数
type rootOptions struct {
	configDir string
	debug     bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "proxyfeed",
		Short:         "Collect proxy share links from public channels and serve them as subscriptions",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configDir, "configdir", "configs", "Path to config directory")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	cmd.AddCommand(
		newServeCommand(opts),
		newScrapeCommand(opts),
		newInspectCommand(opts),
		newFilesCommand(opts),
		newCheckCommand(opts),
	)
	return cmd
}

// loadApp 读取配置、初始化日志并组装应用，不启动监听。
func (o *rootOptions) loadApp() (*app.AppServer, error) {
	cfg, settingsPath, err := app.LoadConfig(o.configDir)
	if err != nil {
		return nil, err
	}
	if o.debug {
		cfg.LogConf.Level = "debug"
	}
	// 日志始终写到 stderr，stdout 只留给订阅内容和表格
	if err := logger.Init(cfg.LogConf); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	s, err := app.New(cfg, settingsPath)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.loadApp()
			if err != nil {
				return err
			}
			return s.Run()
		},
	}
}
