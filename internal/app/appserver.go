package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"proxyfeed/internal/service/metrics"
	"proxyfeed/internal/service/web"
	"proxyfeed/internal/shared/globalstate"
	"proxyfeed/internal/shared/logger"
	"proxyfeed/internal/shared/settings"
	"proxyfeed/internal/shared/types"
	manager "proxyfeed/proxypool"
	"proxyfeed/proxypool/assembler"
	"proxyfeed/proxypool/scraper"
	"proxyfeed/proxypool/storage"
)

const shutdownTimeout = 10 * time.Second

// AppServer is the application's main struct.
type AppServer struct {
	cfg          *types.Config
	settingsPath string

	settingsManager *settings.SettingsManager

	hub       *web.Hub
	metrics   *metrics.Metrics
	fetcher   scraper.PageFetcher
	collector *manager.Collector
	assembler *assembler.Assembler
	files     *storage.FileStorage
	server    *web.Server

	cancelWatch context.CancelFunc
	waitGroup   sync.WaitGroup
	stopOnce    sync.Once
}

// New 组装整个采集流水线。settingsPath 为空时运行时配置只保存在内存中。
// 这里只做构造，不监听端口，CLI 子命令也复用它。
func New(cfg *types.Config, settingsPath string) (*AppServer, error) {
	s := &AppServer{
		cfg:          cfg,
		settingsPath: settingsPath,
		hub:          web.NewHub(),
		metrics:      metrics.New(),
		assembler:    assembler.New(),
		files:        storage.NewFileStorage(cfg.FilesConf),
	}

	sm, err := settings.NewSettingsManager(settingsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize settings manager: %w", err)
	}
	s.settingsManager = sm

	fetcher, err := scraper.New(cfg.FeedConf.Fetcher, fetcherOptions(cfg.FeedConf))
	if err != nil {
		return nil, fmt.Errorf("failed to create page fetcher: %w", err)
	}
	s.fetcher = fetcher

	s.collector = manager.NewCollector(fetcher, time.Duration(cfg.FeedConf.CollectTimeoutSeconds)*time.Second)
	s.collector.AddObserver(s.metrics)
	s.collector.AddObserver(s.hub)

	if err := s.registerModules(); err != nil {
		return nil, err
	}

	handler := web.NewHandler(s.collector, s.assembler, s.files, sm, s.hub, fetcher.Name())
	router, err := web.NewRouter(cfg, handler, s.hub, s.metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to build router: %w", err)
	}
	s.server = web.NewServer(cfg, router)

	logger.Info().
		Str("fetcher", fetcher.Name()).
		Str("base_url", cfg.FeedConf.BaseURL).
		Str("files_root", cfg.FilesConf.Root).
		Msg("Application assembled.")
	return s, nil
}

// Start 启动 Hub、HTTP 服务和配置文件监听，立即返回。
func (s *AppServer) Start() error {
	logger.Info().Msg("Starting proxyfeed server...")

	go s.hub.Run() // 启动 Hub

	if err := s.server.Start(&s.waitGroup); err != nil {
		return err
	}

	if s.settingsPath != "" {
		ctx, cancel := context.WithCancel(context.Background())
		s.cancelWatch = cancel
		s.waitGroup.Add(1)
		go func() {
			defer s.waitGroup.Done()
			if err := s.settingsManager.Watch(ctx); err != nil {
				logger.Warn().Err(err).Msg("Settings hot reload is disabled.")
			}
		}()
	}

	s.setStatus(globalstate.StatusRunning)
	return nil
}

// Run 启动服务并阻塞到收到 SIGINT/SIGTERM。
func (s *AppServer) Run() error {
	if err := s.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info().Msg("Shutdown signal received.")
	s.Stop()
	return nil
}

// Stop gracefully shuts down the server.
func (s *AppServer) Stop() {
	s.stopOnce.Do(func() {
		s.setStatus(globalstate.StatusStopping)

		if s.cancelWatch != nil {
			s.cancelWatch()
		}

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("HTTP server shutdown failed")
		}

		s.hub.Stop()
		s.waitGroup.Wait()
		logger.Info().Msg("Server stopped.")
	})
}

// Addr returns the address the HTTP server is bound to.
func (s *AppServer) Addr() string {
	return s.server.Addr()
}

func (s *AppServer) Collector() *manager.Collector {
	return s.collector
}

func (s *AppServer) Assembler() *assembler.Assembler {
	return s.assembler
}

func (s *AppServer) Files() *storage.FileStorage {
	return s.files
}

func (s *AppServer) Settings() *settings.SettingsManager {
	return s.settingsManager
}

func (s *AppServer) FetcherName() string {
	return s.fetcher.Name()
}
