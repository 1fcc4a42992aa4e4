package jobs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"time"
)

// ScratchSweeper removes request scratch directories that outlived their TTL.
// Requests clean up after themselves; the sweeper catches crashed ones.
// Entries tracked in the active set are never removed, however old.
type ScratchSweeper struct {
	root   string
	ttl    time.Duration
	active *ActiveSet
	now    func() time.Time
}

// NewScratchSweeper creates a sweeper over the direct children of root.
// active may be nil when no requests run in this process.
func NewScratchSweeper(root string, ttl time.Duration, active *ActiveSet) *ScratchSweeper {
	return &ScratchSweeper{root: root, ttl: ttl, active: active, now: time.Now}
}

// ProcessJobs implements JobProcessor
func (s *ScratchSweeper) ProcessJobs(ctx context.Context) error {
	_, err := s.Sweep(ctx)
	return err
}

// Sweep removes expired entries and returns how many were deleted
func (s *ScratchSweeper) Sweep(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read scratch root: %w", err)
	}

	cutoff := s.now().Add(-s.ttl)
	removed := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(s.root, entry.Name())
		idle, err := s.active.IfIdle(entry.Name(), func() error {
			return os.RemoveAll(path)
		})
		if err != nil {
			log.Printf("sweeper: failed to remove %s: %v", path, err)
			continue
		}
		if !idle {
			log.Printf("sweeper: %s is past its ttl but its request is still running", path)
			continue
		}
		removed++
	}

	if removed > 0 {
		log.Printf("sweeper: removed %d expired scratch entries from %s", removed, s.root)
	}
	return removed, nil
}
