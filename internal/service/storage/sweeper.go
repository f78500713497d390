package storage

import (
	"os"
	"path/filepath"
	"time"

	"detectserver/internal/logger"
	"detectserver/internal/metrics"
	"detectserver/internal/repository"
)

// SweepReport summarizes one retention sweep.
type SweepReport struct {
	Scanned int
	Deleted int
	Failed  int
}

// Sweeper deletes uploads older than maxAge. It is best-effort: errors are
// logged and never returned.
type Sweeper struct {
	dir     string
	maxAge  time.Duration
	logger  *logger.Logger
	uploads repository.UploadRepository
	metrics *metrics.Metrics
}

// NewSweeper creates a Sweeper for dir. uploads and m may be nil.
func NewSweeper(dir string, maxAge time.Duration, logger *logger.Logger, uploads repository.UploadRepository, m *metrics.Metrics) *Sweeper {
	return &Sweeper{
		dir:     dir,
		maxAge:  maxAge,
		logger:  logger,
		uploads: uploads,
		metrics: m,
	}
}

// Sweep removes every regular file whose age at now is strictly greater
// than maxAge. Age is measured from the file's modification time.
func (s *Sweeper) Sweep(now time.Time) SweepReport {
	var report SweepReport

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warning("Error reading upload directory %s: %v", s.dir, err)
			report.Failed++
		}
		s.metrics.ObserveSweep(report.Deleted, report.Failed)
		return report
	}

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		report.Scanned++

		info, err := entry.Info()
		if err != nil {
			// vanished between ReadDir and Info
			if !os.IsNotExist(err) {
				s.logger.Warning("Error reading %s: %v", entry.Name(), err)
				report.Failed++
			}
			continue
		}

		if now.Sub(info.ModTime()) <= s.maxAge {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		if err := os.Remove(path); err != nil {
			if !os.IsNotExist(err) {
				s.logger.Warning("Error deleting expired upload %s: %v", path, err)
				report.Failed++
			}
			continue
		}
		report.Deleted++

		if s.uploads != nil {
			if err := s.uploads.DeleteByFilename(entry.Name()); err != nil {
				s.logger.Warning("Error deleting history for %s: %v", entry.Name(), err)
			}
		}
	}

	if report.Deleted > 0 {
		s.logger.Info("Swept %d expired upload(s) from %s", report.Deleted, s.dir)
	}
	s.metrics.ObserveSweep(report.Deleted, report.Failed)

	return report
}
