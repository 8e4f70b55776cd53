// cmd/server/main.go
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/SinaHo/phone-referral-auth/internal/config"
	"github.com/SinaHo/phone-referral-auth/internal/logger"
	"github.com/SinaHo/phone-referral-auth/internal/server"
)

func main() {
	// .env is optional; real environment variables take precedence.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig("internal/config")
	if err != nil {
		bootstrap, _ := zap.NewProduction()
		bootstrap.Sugar().Fatalf("failed to load config: %v", err)
	}

	log, err := logger.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		panic("failed to initialize zap logger: " + err.Error())
	}
	defer log.Sync()

	app, err := server.NewAppServer(cfg, log)
	if err != nil {
		log.Sugar().Fatalf("failed to initialize server: %v", err)
	}

	go func() {
		if err := app.Run(); err != nil {
			log.Sugar().Fatalf("server run error: %v", err)
		}
	}()

	// Wait for interrupt (SIGINT/SIGTERM)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Sugar().Info("Received shutdown signal")
	app.GracefulStop()
	log.Sugar().Info("Server stopped")
}
