package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"detectserver/internal/config"
	"detectserver/internal/logger"
	"detectserver/internal/repository"
	"detectserver/internal/repository/sqlite"
	"detectserver/internal/service/storage"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}
	cfg := config.Load()

	uploadDir := flag.String("dir", cfg.UploadDirectory, "Directory containing uploads")
	maxAge := flag.Duration("max-age", time.Duration(cfg.RetentionSeconds)*time.Second, "Delete uploads older than this")
	dbPath := flag.String("db", cfg.DatabasePath, "Database path (empty to skip history cleanup)")
	flag.Parse()

	fmt.Printf("Sweeping uploads older than %v from %s\n", *maxAge, *uploadDir)

	var uploads repository.UploadRepository
	if *dbPath != "" {
		db, err := sqlite.OpenExisting(*dbPath)
		switch {
		case errors.Is(err, sqlite.ErrNoDatabase):
			fmt.Printf("No history database at %s, skipping history cleanup\n", *dbPath)
		case err != nil:
			log.Fatalf("Failed to open database: %v", err)
		default:
			defer db.Close()
			uploads = sqlite.NewUploadRepository(db)
		}
	}

	sweeper := storage.NewSweeper(*uploadDir, *maxAge, logger.NewLogger(cfg), uploads, nil)
	report := sweeper.Sweep(time.Now())

	fmt.Printf("Scanned %d file(s), deleted %d, failed %d\n", report.Scanned, report.Deleted, report.Failed)
}
