package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/teilomillet/dispute/config"
	"github.com/teilomillet/dispute/server"
)

var (
	configFile = flag.String("config", "dispute.yaml", "Path to configuration file")
	envFile    = flag.String("env", ".env", "Path to .env file loaded before the configuration")
	validate   = flag.Bool("validate", false, "Validate configuration and exit")
	version    = flag.Bool("version", false, "Print version and exit")
)

const Version = "v0.1.0"

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("dispute %s\n", Version)
		os.Exit(0)
	}

	loaded, err := config.LoadDotEnv(*envFile)
	if err != nil {
		log.Fatalf("Failed to load environment file: %v", err)
	}

	cfg, err := config.LoadFile(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *validate {
		fmt.Println("Configuration is valid")
		os.Exit(0)
	}

	logger, level, err := config.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	if len(loaded) > 0 {
		logger.Info("Loaded environment", zap.Strings("files", loaded))
	}
	if cfg.LLM.APIKey == "" {
		logger.Warn("No provider API key configured; set OPENAI_API_KEY or llm.api_key")
	}

	watcher, err := config.NewConfigWatcher(*configFile, logger)
	if err != nil {
		logger.Fatal("Failed to watch config", zap.Error(err), zap.String("config_path", *configFile))
	}
	defer watcher.Close()

	srv, err := server.NewServer(watcher, logger, server.WithLogLevel(level))
	if err != nil {
		logger.Fatal("Server initialization failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting dispute service",
		zap.String("version", Version),
		zap.String("address", cfg.Server.Addr()),
	)
	if err := srv.Start(ctx); err != nil {
		logger.Fatal("Server error", zap.Error(err))
	}
	logger.Info("Server stopped")
}
