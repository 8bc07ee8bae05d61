package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"SecretChat/internal/core"
	"SecretChat/internal/storage"
	"SecretChat/internal/storage/sqlite"
	"SecretChat/internal/transport"
	"SecretChat/internal/ui"
	"SecretChat/pkg/config"
)

func main() {
	// Парсим флаги командной строки
	configPath := flag.String("config", "", "Путь к файлу конфигурации")
	dbPath := flag.String("db", "", "Путь к базе данных SQLite")
	offerTTL := flag.Int("ttl", 0, "Сохранить TTL приглашения в секундах")
	iceURLs := flag.String("ice", "", "Сохранить список STUN серверов через запятую")
	flag.Parse()

	// Загружаем конфигурацию
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Printf("Warning: failed to load config: %v, using defaults", err)
		cfg = config.DefaultConfig()
	}

	// Создаем директорию для данных приложения
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Fatalf("Failed to get home directory: %v", err)
	}
	appDir := filepath.Join(homeDir, ".secretchat")
	if err := os.MkdirAll(appDir, 0o700); err != nil {
		log.Fatalf("Failed to create app directory: %v", err)
	}

	logDir := cfg.Log.Dir
	if !filepath.IsAbs(logDir) {
		logDir = filepath.Join(appDir, logDir)
	}
	if err := core.InitGlobalLogger(core.ParseLogLevel(cfg.Log.Level), core.ParseLogOutput(cfg.Log.Output), logDir); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer core.GetGlobalLogger().Close()

	// Определяем путь к базе данных
	if *dbPath == "" {
		*dbPath = cfg.Storage.DatabasePath
		if !filepath.IsAbs(*dbPath) {
			*dbPath = filepath.Join(appDir, *dbPath)
		}
	}

	core.Info("📁 Используем базу данных: %s", *dbPath)
	settings, err := sqlite.NewSettingsRepository(*dbPath)
	if err != nil {
		log.Fatalf("Failed to create settings repository: %v", err)
	}
	defer settings.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := persistFlags(ctx, settings, *offerTTL, *iceURLs); err != nil {
		log.Fatalf("Failed to save settings: %v", err)
	}

	// Метрики
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metrics := core.NewMetrics(registry)

	// Создаем транспортный слой
	core.Info("🌐 Создаем WebRTC транспорт...")
	servers := storage.ICEServersOrDefault(ctx, settings, cfg.Network.ICEServers)
	backend := transport.NewWebRTCTransport(transport.OptionsFromConfig(cfg, servers))
	defer backend.Close()

	opts := core.OptionsFromConfig(cfg)
	opts.Settings = settings
	opts.Metrics = metrics
	session := core.NewSession(backend, opts)
	if err := session.Start(ctx); err != nil {
		log.Fatalf("Failed to start session: %v", err)
	}
	defer session.Close()

	g, gctx := errgroup.WithContext(ctx)
	program := tea.NewProgram(ui.NewTUIApp(gctx, session), tea.WithAltScreen(), tea.WithContext(gctx))

	if cfg.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			core.Info("📊 Метрики доступны на %s/metrics", cfg.Metrics.Listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		defer stop()
		_, err := program.Run()
		if errors.Is(err, tea.ErrProgramKilled) {
			return nil
		}
		return err
	})

	if err := g.Wait(); err != nil {
		core.Error("❌ Ошибка: %v", err)
		log.Printf("Error: %v", err)
	}

	// Разрываем соединение, чтобы собеседник сразу увидел выход
	if err := session.Exit(context.Background()); err != nil {
		core.Warn("Ошибка отключения: %v", err)
	}
	core.Info("👋 Приложение остановлено")
}

// persistFlags сохраняет настройки, переданные флагами
func persistFlags(ctx context.Context, settings storage.ISettingsRepository, ttl int, ice string) error {
	if ttl != 0 {
		if err := settings.SetOfferTTL(ctx, ttl); err != nil {
			return err
		}
		core.Info("⏱️ TTL приглашения сохранен: %d с", ttl)
	}
	if ice == "" {
		return nil
	}

	var servers []config.ICEServer
	for _, url := range strings.Split(ice, ",") {
		url = strings.TrimSpace(url)
		if url == "" {
			continue
		}
		kind := "stun"
		if strings.HasPrefix(url, "turn:") {
			kind = "turn"
		}
		servers = append(servers, config.ICEServer{ID: uuid.NewString(), Type: kind, URL: url})
	}
	if err := settings.SaveICEServers(ctx, servers); err != nil {
		return err
	}
	core.Info("🧊 Сохранено ICE серверов: %d", len(servers))
	return nil
}
