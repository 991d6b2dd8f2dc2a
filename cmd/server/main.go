package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sprachlupe/internal/api"
	"sprachlupe/internal/app"
	"sprachlupe/internal/audio"
	"sprachlupe/internal/config"
	"sprachlupe/internal/llm"
	"sprachlupe/internal/logger"
	"sprachlupe/internal/pdf"
	"sprachlupe/internal/storage"
)

func main() {
	// Kommandozeilen-Flags
	configPath := flag.String("config", "config.json", "Pfad zur Konfigurationsdatei")
	port := flag.String("port", "", "Server-Port (überschreibt die Konfiguration)")
	flag.Parse()

	// Konfiguration laden
	cfg, cfgErr := config.Load(*configPath)
	if *port != "" {
		cfg.ServerPort = *port
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logger konnte nicht erstellt werden: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Sprachlupe startet")
	if cfgErr != nil {
		log.Warn("Konnte Konfiguration nicht laden, verwende Standardwerte", "path", *configPath, "error", cfgErr)
	}
	if cfg.GeminiAPIKey == "" {
		log.Warn("Kein API-Schlüssel gesetzt (GEMINI_API_KEY), KI-Funktionen werden fehlschlagen")
	}

	// Speicher initialisieren
	kv, err := openKV(cfg)
	if err != nil {
		log.Fatal("Fehler beim Initialisieren des Speichers", "backend", cfg.StorageBackend, "error", err)
	}
	defer kv.Close()
	log.Info("Speicher bereit", "backend", cfg.StorageBackend)

	store := storage.NewStore(kv, log, func(key string, err error) {
		log.Error("Schreiben fehlgeschlagen", "key", key, "error", err)
	})

	// KI-Provider initialisieren
	provider := llm.NewGeminiProvider(cfg.GeminiURL, cfg.GeminiAPIKey, cfg.TextModel, cfg.Timeout())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if provider.IsAvailable(ctx) {
		if available, err := provider.GetModels(ctx); err == nil {
			log.Info("KI-Dienst erreichbar", "url", cfg.GeminiURL, "models", len(available))
		}
	} else {
		log.Warn("KI-Dienst NICHT erreichbar", "url", cfg.GeminiURL)
	}
	cancel()

	gateway := llm.NewGateway(provider, llm.GatewayConfig{
		TextModel:   cfg.TextModel,
		ImageModel:  cfg.ImageModel,
		SpeechModel: cfg.SpeechModel,
		Voice:       cfg.Voice,
	}, log)

	player := audio.NewPlayer(audio.ClockSink{})
	player.OnStateChange(func(s audio.State) {
		log.Debug("Wiedergabe", "state", s)
	})

	ctrl := app.New(context.Background(), app.Options{
		Gateway:               gateway,
		Store:                 store,
		Player:                player,
		Parser:                pdf.NewParser(cfg.MaxDocumentChars),
		Log:                   log,
		DefaultTargetLanguage: cfg.DefaultTargetLanguage,
	})

	handler := api.NewHandler(ctrl, provider, cfg, log)
	router := api.NewRouter(handler, cfg.StaticPath)

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful Shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Info("Server wird heruntergefahren")
		player.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("Shutdown fehlgeschlagen", "error", err)
		}
	}()

	log.Info("Server läuft", "url", "http://localhost:"+cfg.ServerPort, "static", cfg.StaticPath)

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("Server-Fehler", "error", err)
	}
}

// openKV öffnet das konfigurierte Speicher-Backend
func openKV(cfg *config.Config) (storage.KV, error) {
	switch cfg.StorageBackend {
	case "", "sqlite":
		return storage.NewSQLiteKV(cfg.DatabasePath)
	case "redis":
		return storage.NewRedisKV(storage.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	case "memory":
		return storage.NewMemoryKV(), nil
	default:
		return nil, fmt.Errorf("unbekanntes Speicher-Backend %q", cfg.StorageBackend)
	}
}
