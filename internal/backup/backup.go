// Package backup copies the database file on a cron schedule and prunes old
// snapshots. The runner owns its scheduler lifecycle so tests can run a
// backup synchronously instead of waiting on a timer.
package backup

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const prefix = "meetsign_"

// Runner performs scheduled file-copy backups with keep-newest-N retention.
type Runner struct {
	log    *zap.Logger
	dbPath string
	dir    string
	keep   int
	spec   string
	cron   *cron.Cron
	now    func() time.Time
}

// New creates a runner. keep is the number of snapshots retained.
func New(log *zap.Logger, dbPath, dir, spec string, keep int) *Runner {
	if keep <= 0 {
		keep = 30
	}
	return &Runner{log: log, dbPath: dbPath, dir: dir, keep: keep, spec: spec, now: time.Now}
}

// Start registers the cron entry and starts the scheduler.
func (r *Runner) Start() error {
	c := cron.New()
	_, err := c.AddFunc(r.spec, func() {
		if path, err := r.RunOnce(); err != nil {
			r.log.Error("scheduled backup failed", zap.Error(err))
		} else {
			r.log.Info("scheduled backup complete", zap.String("path", path))
		}
	})
	if err != nil {
		return fmt.Errorf("bad backup schedule %q: %w", r.spec, err)
	}
	c.Start()
	r.cron = c
	r.log.Info("backup scheduler started", zap.String("schedule", r.spec), zap.Int("keep", r.keep))
	return nil
}

// Stop cancels the scheduler, waiting for a running job to finish.
func (r *Runner) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
}

// RunOnce copies the database file into the backup directory and prunes to
// the newest N snapshots. Safe alongside in-flight writes; snapshot
// consistency is the storage engine's concern.
func (r *Runner) RunOnce() (string, error) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}
	dst := filepath.Join(r.dir, prefix+r.now().UTC().Format("20060102_150405")+".db")
	if err := copyFile(r.dbPath, dst); err != nil {
		return "", fmt.Errorf("copy database: %w", err)
	}
	if err := r.prune(); err != nil {
		return "", err
	}
	return dst, nil
}

func (r *Runner) prune() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("read backup dir: %w", err)
	}
	type snap struct {
		path string
		mod  time.Time
	}
	var snaps []snap
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) || !strings.HasSuffix(e.Name(), ".db") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		snaps = append(snaps, snap{path: filepath.Join(r.dir, e.Name()), mod: info.ModTime()})
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].mod.After(snaps[j].mod) })
	for _, s := range snaps[min(r.keep, len(snaps)):] {
		if err := os.Remove(s.path); err != nil {
			return fmt.Errorf("remove old backup: %w", err)
		}
		r.log.Info("removed old backup", zap.String("path", s.path))
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
