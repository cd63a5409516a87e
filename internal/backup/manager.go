package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tinytelemetry/canopy/internal/scheduler"
	"go.uber.org/zap"
)

// FeedID is the scheduler feed running periodic backups.
const FeedID = "backup"

const (
	defaultInterval = 6 * time.Hour
	defaultKeepLast = 24
	filePrefix      = "canopy-"
	fileExt         = ".duckdb"
)

// Manager runs periodic local snapshots and optional remote uploads.
type Manager struct {
	store    Snapshotter
	cfg      Config
	uploader Uploader
	sched    *scheduler.Scheduler
	logger   *zap.Logger

	// ctx is cancelled by Stop so an in-flight upload aborts.
	ctx    context.Context
	cancel context.CancelFunc
	runs   sync.WaitGroup
	mu     sync.Mutex // serializes RunOnce
}

// NewManager validates cfg. It returns nil when backups are disabled.
func NewManager(store Snapshotter, cfg Config, sched *scheduler.Scheduler, logger *zap.Logger) (*Manager, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if store == nil {
		return nil, fmt.Errorf("backup: nil snapshotter")
	}
	if strings.TrimSpace(store.DBPath()) == "" {
		return nil, fmt.Errorf("backup: db-path is empty (in-memory store)")
	}
	if sched == nil {
		return nil, fmt.Errorf("backup: nil scheduler")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if strings.TrimSpace(cfg.LocalDir) == "" {
		return nil, fmt.Errorf("backup: local-dir is required when backup is enabled")
	}
	if cfg.KeepLast <= 0 {
		cfg.KeepLast = defaultKeepLast
	}
	if err := os.MkdirAll(cfg.LocalDir, 0755); err != nil {
		return nil, fmt.Errorf("backup: create local-dir: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var uploader Uploader
	if strings.TrimSpace(cfg.BucketURL) != "" {
		s3u, err := NewS3Uploader(S3Config{
			BucketURL:    cfg.BucketURL,
			Endpoint:     cfg.S3Endpoint,
			Region:       cfg.S3Region,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			SessionToken: cfg.S3SessionToken,
			UseSSL:       cfg.S3UseSSL,
			ContentType:  "application/octet-stream",
		})
		if err != nil {
			return nil, fmt.Errorf("backup: init s3 uploader: %w", err)
		}
		uploader = s3u
	}

	return newManager(store, cfg, uploader, sched, logger), nil
}

func newManager(store Snapshotter, cfg Config, uploader Uploader, sched *scheduler.Scheduler, logger *zap.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		store:    store,
		cfg:      cfg,
		uploader: uploader,
		sched:    sched,
		logger:   logger.Named("backup"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start takes a startup snapshot to shorten the recovery point after a
// restart, then schedules one every cfg.Interval.
func (m *Manager) Start() error {
	if err := m.RunOnce(m.ctx); err != nil {
		m.logger.Warn("startup snapshot failed", zap.Error(err))
	}
	return m.sched.Start(FeedID, m.cfg.Interval, m.tick)
}

func (m *Manager) tick(ctx context.Context) {
	if m.ctx.Err() != nil {
		return
	}
	m.runs.Add(1)
	defer m.runs.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(m.ctx, cancel)
	defer stop()

	if err := m.RunOnce(ctx); err != nil {
		m.logger.Warn("periodic snapshot failed", zap.Error(err))
	}
}

// RunOnce creates one local snapshot, uploads it when configured, and prunes
// old local copies.
func (m *Manager) RunOnce(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	localPath := filepath.Join(m.cfg.LocalDir, backupName(time.Now()))
	if err := m.store.SnapshotTo(ctx, localPath); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	m.logger.Info("created snapshot", zap.String("path", localPath))

	if m.uploader != nil {
		if err := m.uploader.UploadFile(ctx, localPath); err != nil {
			return fmt.Errorf("upload: %w", err)
		}
		m.logger.Info("uploaded snapshot", zap.String("file", filepath.Base(localPath)))
	}

	if err := pruneLocalBackups(m.cfg.LocalDir, m.cfg.KeepLast); err != nil {
		return fmt.Errorf("prune local backups: %w", err)
	}
	return nil
}

// Stop cancels the schedule and any in-flight snapshot, then waits for it.
func (m *Manager) Stop() {
	m.sched.Stop(FeedID)
	m.cancel()
	m.runs.Wait()
}

// List returns local backups, newest first.
func List(localDir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(localDir, filePrefix+"*"+fileExt))
	if err != nil {
		return nil, err
	}
	// The timestamp in the name sorts lexically in time order.
	sort.Sort(sort.Reverse(sort.StringSlice(matches)))
	return matches, nil
}

func backupName(now time.Time) string {
	return filePrefix + now.UTC().Format("20060102-150405.000000") + fileExt
}

func pruneLocalBackups(localDir string, keepLast int) error {
	if keepLast <= 0 {
		return nil
	}
	matches, err := List(localDir)
	if err != nil {
		return err
	}
	if len(matches) <= keepLast {
		return nil
	}
	for _, oldPath := range matches[keepLast:] {
		if err := os.Remove(oldPath); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
