package station

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/flock"

	"qcstation/internal/artifacts"
	"qcstation/internal/catalog"
	"qcstation/internal/config"
	"qcstation/internal/engine"
	"qcstation/internal/eventlog"
	"qcstation/internal/logging"
	"qcstation/internal/snapshot"
	"qcstation/internal/summary"
	"qcstation/internal/trayindex"
)

// ErrStationBusy is returned when another process holds the station lock.
var ErrStationBusy = errors.New("another qcstation instance is already running on this machine")

// Option customizes a Station.
type Option func(*Station)

// WithClock overrides the wall clock used by the engine and the box store.
func WithClock(now func() time.Time) Option {
	return func(s *Station) {
		if now != nil {
			s.clock = now
		}
	}
}

// WithRenderer overrides the label renderer for new boxes.
func WithRenderer(r artifacts.Renderer) Option {
	return func(s *Station) {
		s.renderer = r
	}
}

// WithTickInterval sets how often Run checks for idleness.
func WithTickInterval(d time.Duration) Option {
	return func(s *Station) {
		if d > 0 {
			s.tick = d
		}
	}
}

// Station owns the stores of one workstation.
type Station struct {
	cfg       *config.Config
	logger    *slog.Logger
	clock     func() time.Time
	renderer  artifacts.Renderer
	tick      time.Duration
	machineID string

	lock   *flock.Flock
	locked bool

	catalog   *catalog.Catalog
	log       *eventlog.Store
	artifacts *artifacts.Store
	snapshots *snapshot.Store
	index     *trayindex.Index

	engine *engine.Engine
	closed bool
}

// Open prepares the stores described by cfg. The catalog must be readable;
// the tray index is optional and a failure to open it only disables it.
func Open(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Station, error) {
	if cfg == nil {
		return nil, errors.New("station requires a config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Station{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "station"),
		clock:    time.Now,
		renderer: artifacts.DescriptorRenderer{},
		tick:     time.Second,
		lock:     flock.New(cfg.LockPath()),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	items, err := catalog.Load(cfg.Paths.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("load item catalog: %w", err)
	}
	s.catalog = items

	s.log, err = eventlog.Open(cfg.Paths.Root, eventlog.Options{
		QueueSize:     cfg.EventLog.QueueSize,
		RetryInterval: cfg.RetryInterval(),
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}

	s.artifacts = artifacts.NewStore(cfg.Paths.Root, cfg.Paths.LabelsDir, logger,
		artifacts.WithRenderer(s.renderer),
		artifacts.WithClock(s.clock),
	)
	s.machineID = snapshot.MachineID(cfg.Station.MachineID)
	s.snapshots = snapshot.NewStore(cfg.Paths.Root, s.machineID, logger)

	if index, err := trayindex.Open(cfg.TrayIndexPath()); err != nil {
		logging.WarnWithContext(s.logger, "tray index unavailable", "tray_index_open_failed",
			logging.String("path", cfg.TrayIndexPath()),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run `qcstation index rebuild` or delete the index file"),
			logging.String(logging.FieldImpact, "completed-tray lookups fall back to scanning the shared logs"),
		)
	} else {
		s.index = index
	}

	s.logger.Debug("station opened",
		logging.String("root", cfg.Paths.Root),
		logging.String("machine_id", s.machineID),
		logging.Int("catalog_items", items.Len()),
		logging.Bool("tray_index", s.index != nil),
	)
	return s, nil
}

// MachineID returns the identity keying this station's snapshot.
func (s *Station) MachineID() string {
	return s.machineID
}

// Catalog returns the loaded item catalog.
func (s *Station) Catalog() *catalog.Catalog {
	return s.catalog
}

// Log returns the shared event log.
func (s *Station) Log() *eventlog.Store {
	return s.log
}

// Artifacts returns the box store.
func (s *Station) Artifacts() *artifacts.Store {
	return s.artifacts
}

// Engine returns the logged-in operator's engine, or nil.
func (s *Station) Engine() *engine.Engine {
	return s.engine
}

// Close logs out any operator, drains the event log and releases the lock.
func (s *Station) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	var errs []error
	if s.engine != nil {
		if err := s.Logout(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.log != nil {
		if err := s.log.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close event log: %w", err))
		}
	}
	if s.index != nil {
		if err := s.index.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close tray index: %w", err))
		}
	}
	if s.locked {
		if err := s.lock.Unlock(); err != nil {
			s.logger.Warn("failed to release station lock", logging.Error(err))
		}
		s.locked = false
	}
	return errors.Join(errs...)
}

func (s *Station) acquire() error {
	if s.locked {
		return nil
	}
	ok, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire station lock: %w", err)
	}
	if !ok {
		return ErrStationBusy
	}
	s.locked = true
	return nil
}

// syncIndex records today's completed trays from the shared logs, so trays
// finished on another machine or before the index existed are known.
func (s *Station) syncIndex(ctx context.Context, day time.Time) {
	if s.index == nil {
		return
	}
	trays, err := trayindex.CollectRange(s.log, day, day)
	if err != nil {
		s.logger.Warn("tray index sync failed", logging.Error(err))
		return
	}
	for _, t := range trays {
		if err := s.index.Record(ctx, t); err != nil {
			s.logger.Warn("tray index sync failed", logging.Error(err))
			return
		}
	}
}

// Summary builds the dashboard report for worker ("" for every worker) on day.
func (s *Station) Summary(worker string, day time.Time) (summary.Report, error) {
	return summary.Build(s.log, worker, day, s.cfg.Summary.MinSecondsPerUnit)
}

// Trays lists indexed trays completed within [from, to].
func (s *Station) Trays(ctx context.Context, from, to time.Time) ([]trayindex.Tray, error) {
	if s.index == nil {
		return nil, errors.New("tray index unavailable")
	}
	return s.index.List(ctx, dayText(from), dayText(to))
}

func dayText(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.DateOnly)
}

// RebuildIndex repopulates the tray index from every inspection log.
func (s *Station) RebuildIndex(ctx context.Context) (int, error) {
	if s.index == nil {
		return 0, errors.New("tray index unavailable")
	}
	trays, err := trayindex.Collect(s.log)
	if err != nil {
		return 0, fmt.Errorf("collect trays: %w", err)
	}
	if err := s.index.Rebuild(ctx, trays); err != nil {
		return 0, err
	}
	s.logger.Info("tray index rebuilt",
		logging.String(logging.FieldEventType, "tray_index_rebuilt"),
		logging.Int("trays", len(trays)),
	)
	return len(trays), nil
}

// Boxes lists stored boxes of kind, newest first.
func (s *Station) Boxes(kind artifacts.Kind) ([]artifacts.Artifact, error) {
	return s.artifacts.List(kind)
}

// UnprocessedDefects lists defective units of item that are neither boxed
// nor reworked.
func (s *Station) UnprocessedDefects(item string) ([]engine.Defect, error) {
	if s.engine != nil {
		return s.engine.Unprocessed(item)
	}
	return engine.Unprocessed(s.log, s.artifacts, item)
}
