package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-progress-api/internal/models"
	appErrors "github.com/noah-isme/sma-progress-api/pkg/errors"
)

type snapshotSource interface {
	Fetch(ctx context.Context) (models.SnapshotData, error)
}

// snapshotProvider is what mutating services need from the snapshot store.
type snapshotProvider interface {
	Current(ctx context.Context) (*models.Snapshot, error)
	Reload(ctx context.Context) (*models.Snapshot, error)
	MarkStale()
}

// SnapshotService holds the in-memory copy of the backend collections. The
// snapshot is replaced wholesale on every reload and is never patched. Once a
// mutation marks it stale it is not served again until a reload succeeds.
type SnapshotService struct {
	source  snapshotSource
	maxAge  time.Duration
	metrics *MetricsService
	cache   *CacheService
	events  EventPublisher
	logger  *zap.Logger
	now     func() time.Time

	reloadMu sync.Mutex

	mu       sync.RWMutex
	current  *models.Snapshot
	version  int64
	staleGen uint64
	freshGen uint64
}

// NewSnapshotService constructs the store. maxAge <= 0 disables age based reloads.
func NewSnapshotService(source snapshotSource, maxAge time.Duration, metrics *MetricsService, cache *CacheService, events EventPublisher, logger *zap.Logger) *SnapshotService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotService{
		source:  source,
		maxAge:  maxAge,
		metrics: metrics,
		cache:   cache,
		events:  events,
		logger:  logger,
		now:     time.Now,
	}
}

// Current returns a trustworthy snapshot, reloading when none exists, when a
// mutation invalidated it, or when it outgrew maxAge. An aged snapshot that
// cannot be refreshed is still served; a stale one is not.
func (s *SnapshotService) Current(ctx context.Context) (*models.Snapshot, error) {
	s.mu.RLock()
	snap := s.current
	stale := s.staleGen != s.freshGen
	s.mu.RUnlock()

	if snap != nil && !stale && !s.expired(snap) {
		return snap, nil
	}

	fresh, err := s.Reload(ctx)
	if err == nil {
		return fresh, nil
	}
	if snap != nil && !stale {
		s.logger.Warn("serving aged snapshot after failed reload", zap.Int64("version", snap.Version), zap.Error(err))
		return snap, nil
	}
	return nil, err
}

// Reload fetches every collection and swaps the snapshot in. Concurrent
// reloads are serialised; a failure keeps the previous snapshot marked stale.
func (s *SnapshotService) Reload(ctx context.Context) (*models.Snapshot, error) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	s.mu.RLock()
	gen := s.staleGen
	s.mu.RUnlock()

	data, err := s.source.Fetch(ctx)
	if err != nil {
		s.metrics.RecordSnapshotReload(0, err)
		s.logger.Error("snapshot reload failed", zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrSnapshotStale.Code, appErrors.ErrSnapshotStale.Status, appErrors.ErrSnapshotStale.Message)
	}

	s.mu.Lock()
	s.version++
	snap := models.NewSnapshot(s.version, s.now().UTC(), data)
	s.current = snap
	s.freshGen = gen
	s.mu.Unlock()

	s.metrics.RecordSnapshotReload(snap.Version, nil)
	s.logger.Debug("snapshot reloaded", zap.Int64("version", snap.Version), zap.Int("students", len(data.Students)))

	if err := s.cache.InvalidateReports(ctx); err != nil {
		s.logger.Warn("failed to invalidate report cache", zap.Error(err))
	}
	publish(ctx, s.events, s.logger, EventSnapshotReloaded, SnapshotReloadedEvent{Version: snap.Version})
	return snap, nil
}

// MarkStale invalidates the current snapshot ahead of a backend write.
func (s *SnapshotService) MarkStale() {
	s.mu.Lock()
	s.staleGen++
	s.mu.Unlock()
}

// Info returns metadata about the served snapshot; ok is false before the first load.
func (s *SnapshotService) Info() (models.SnapshotInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return models.SnapshotInfo{Stale: true}, false
	}
	info := s.current.Info()
	info.Stale = s.staleGen != s.freshGen || s.expired(s.current)
	return info, true
}

func (s *SnapshotService) expired(snap *models.Snapshot) bool {
	return s.maxAge > 0 && s.now().Sub(snap.LoadedAt) > s.maxAge
}
