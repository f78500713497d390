package main

import (
	"log"

	"detectserver/internal/app"
	"detectserver/internal/config"
	"detectserver/internal/logger"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	cfg := config.Load()
	appLogger := logger.NewLogger(cfg)

	application, err := app.NewApp(cfg, appLogger)
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	if err := application.Run(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
