package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/hisabi-bot/hisabi/internal/webhook"
	"github.com/hisabi-bot/hisabi/pkg/api"
	"github.com/hisabi-bot/hisabi/pkg/channel/whatsapp"
	"github.com/hisabi-bot/hisabi/pkg/client"
	"github.com/hisabi-bot/hisabi/pkg/config"
	"github.com/hisabi-bot/hisabi/pkg/engine"
	csvexport "github.com/hisabi-bot/hisabi/pkg/export/csv"
	sheetsexport "github.com/hisabi-bot/hisabi/pkg/export/sheets"
	"github.com/hisabi-bot/hisabi/pkg/extract"
	"github.com/hisabi-bot/hisabi/pkg/hosting/drive"
	"github.com/hisabi-bot/hisabi/pkg/logging"
	memorystore "github.com/hisabi-bot/hisabi/pkg/storage/memory"
	postgresstore "github.com/hisabi-bot/hisabi/pkg/storage/postgres"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	logger := logging.Setup(logging.FromEnv())

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", nil), nil); err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	var cfg config.Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf", FlatPaths: true}); err != nil {
		logger.Error("failed to unmarshal config", "error", err)
		os.Exit(1)
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var store api.Store
	if cfg.Postgres.Host != "" {
		pg, err := postgresstore.New(ctx, postgresstore.Config{
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
		}, logger)
		if err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		store = pg
	} else {
		logger.Warn("POSTGRES_HOST not set, using in-memory store; data is lost on restart")
		store = memorystore.New()
	}

	channel, err := whatsapp.New(whatsapp.Config{
		Token:         cfg.WhatsApp.Token,
		PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
		BaseURL:       cfg.WhatsApp.BaseURL,
	}, logger)
	if err != nil {
		logger.Error("failed to create whatsapp client", "error", err)
		os.Exit(1)
	}

	var extractor api.Extractor
	if cfg.Extractor.APIKey != "" {
		ext, err := extract.New(extract.Config{
			APIKey:  cfg.Extractor.APIKey,
			BaseURL: cfg.Extractor.BaseURL,
			Model:   cfg.Extractor.Model,
		}, logger)
		if err != nil {
			logger.Error("failed to create extractor", "error", err)
			os.Exit(1)
		}
		extractor = ext
	} else {
		logger.Warn("EXTRACTOR_API_KEY not set, free-text and image extraction disabled")
	}

	images, exporter := googleIntegrations(cfg, logger)
	if exporter == nil {
		exporter = csvexport.New()
	}

	eng := engine.New(engine.Deps{
		Store:     store,
		Channel:   channel,
		Extractor: extractor,
		Images:    images,
		Exporter:  exporter,
	}, logger)

	server := webhook.New(webhook.Config{
		Addr:        cfg.Addr,
		VerifyToken: cfg.VerifyToken,
	}, eng, channel, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", "signal", sig)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
		cancel()
	}()

	if err := server.Start(); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

// googleIntegrations wires Drive image hosting and the Sheets exporter
// when OAuth credentials are configured. Either can be absent; the bot
// degrades to no receipt links and CSV exports.
func googleIntegrations(cfg config.Config, logger *slog.Logger) (api.ImageHost, engine.Exporter) {
	if cfg.Google.ClientSecretFile == "" || cfg.Google.TokenFile == "" {
		logger.Info("google credentials not configured, using csv export and no image hosting")
		return nil, nil
	}

	scopes := append(drive.Scopes(), sheetsexport.Scopes()...)
	httpClient, err := client.New(cfg.Google.ClientSecretFile, cfg.Google.TokenFile, scopes...)
	if err != nil {
		logger.Warn("google auth unavailable, falling back to csv export", "error", err)
		return nil, nil
	}

	return newDrive(httpClient, cfg, logger), newSheets(httpClient, cfg, logger)
}

func newDrive(httpClient *http.Client, cfg config.Config, logger *slog.Logger) api.ImageHost {
	host, err := drive.New(httpClient, drive.Config{FolderID: cfg.Google.DriveFolderID}, logger)
	if err != nil {
		logger.Warn("drive hosting unavailable", "error", err)
		return nil
	}
	return host
}

func newSheets(httpClient *http.Client, cfg config.Config, logger *slog.Logger) engine.Exporter {
	exp, err := sheetsexport.New(httpClient, sheetsexport.Config{
		SpreadsheetID: cfg.Google.SheetsID,
		Title:         cfg.Google.SheetsTitle,
		SheetName:     cfg.Google.SheetsName,
	}, logger)
	if err != nil {
		logger.Warn("sheets export unavailable, falling back to csv", "error", err)
		return nil
	}
	return exp
}
