package retention

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/crosslink-ai/crosslink/internal/logger"
)

// HistoryStore is the slice of the history layer the purger needs.
type HistoryStore interface {
	PurgeBefore(cutoff time.Time) (int64, error)
}

// Purger deletes invocation records older than the retention window and
// sweeps orphaned output files left behind by interrupted invocations.
type Purger struct {
	store     HistoryStore
	schedule  string
	retention time.Duration
	tempDir   string
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New validates the cron schedule and builds a purger. retentionDays <= 0
// disables record purging but stale file sweeping still runs.
func New(store HistoryStore, schedule string, retentionDays int) (*Purger, error) {
	if err := ValidateCron(schedule); err != nil {
		return nil, err
	}
	return &Purger{
		store:     store,
		schedule:  schedule,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		tempDir:   os.TempDir(),
	}, nil
}

// Start begins the purge loop.
func (p *Purger) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.wg.Add(1)

	go func() {
		defer p.wg.Done()
		for {
			next, err := NextRun(p.schedule, time.Now())
			if err != nil {
				return
			}
			timer := time.NewTimer(time.Until(next))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
				p.runPurge()
			}
		}
	}()

	logger.Slog().Info("retention purge scheduled", "schedule", p.schedule, "retention", p.retention)
}

// Stop halts the purge loop.
func (p *Purger) Stop() {
	if p.cancel != nil {
		p.cancel()
		p.wg.Wait()
		logger.Slog().Info("retention purge stopped")
	}
}

// runPurge performs one purge pass.
func (p *Purger) runPurge() {
	if p.retention > 0 {
		cutoff := time.Now().Add(-p.retention)
		purged, err := p.store.PurgeBefore(cutoff)
		if err != nil {
			logger.Slog().Error("failed to purge invocation history", "error", err)
		} else if purged > 0 {
			logger.Slog().Info("purged invocation history", "records", purged, "cutoff", cutoff)
		}
	}
	p.sweepTempFiles()
}

// sweepTempFiles removes auxiliary output files that outlived their
// invocation. The runner deletes its own files; anything still matching the
// pattern after an hour was orphaned by a crash.
func (p *Purger) sweepTempFiles() {
	cutoff := time.Now().Add(-time.Hour)
	matches, err := filepath.Glob(filepath.Join(p.tempDir, "crosslink-*.out"))
	if err != nil {
		return
	}

	var removed int
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err == nil {
				removed++
			}
		}
	}
	if removed > 0 {
		logger.Slog().Info("swept orphaned output files", "files", removed)
	}
}
