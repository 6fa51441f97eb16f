package eventlog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"qcstation/internal/csvio"
	"qcstation/internal/logging"
)

var header = []string{"timestamp", "worker", "event", "details"}

// ErrClosed is returned when appending to a closed store.
var ErrClosed = errors.New("event log closed")

// Options configures a Store.
type Options struct {
	QueueSize     int
	RetryInterval time.Duration
	Logger        *slog.Logger
}

type job struct {
	stream  Stream
	event   Event
	barrier chan struct{}
}

// Store owns the log files under root and the single writer goroutine that
// appends to them.
type Store struct {
	root   string
	logger *slog.Logger
	retry  time.Duration

	queue chan job
	done  chan struct{}

	// fileMu serializes the writer against Rewrite within this process; the
	// per-file flock does the same across stations.
	fileMu sync.Mutex

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// Open starts a store rooted at root.
func Open(root string, opts Options) (*Store, error) {
	if root == "" {
		return nil, errors.New("event log root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create event log root: %w", err)
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 500 * time.Millisecond
	}
	s := &Store{
		root:   root,
		logger: logging.NewComponentLogger(opts.Logger, "eventlog"),
		retry:  opts.RetryInterval,
		queue:  make(chan job, opts.QueueSize),
		done:   make(chan struct{}),
	}
	go s.run()
	return s, nil
}

// Root returns the directory holding the log files.
func (s *Store) Root() string {
	return s.root
}

// Append enqueues ev for stream and returns without waiting for the write.
// It blocks only when the queue is full.
func (s *Store) Append(stream Stream, ev Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	s.queue <- job{stream: stream, event: ev}
	return nil
}

// Flush waits until every event enqueued before the call has been written.
func (s *Store) Flush(ctx context.Context) error {
	barrier := make(chan struct{})
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil
	}
	s.queue <- job{barrier: barrier}
	s.mu.RUnlock()

	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains the queue and stops the writer. Pending events are still
// retried until written, so Close blocks while the root is unreachable.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.queue)
		s.mu.Unlock()
		<-s.done
	})
	return nil
}

func (s *Store) run() {
	defer close(s.done)
	for j := range s.queue {
		if j.barrier != nil {
			close(j.barrier)
			continue
		}
		s.writeWithRetry(j)
	}
}

func (s *Store) writeWithRetry(j job) {
	for attempt := 1; ; attempt++ {
		err := s.write(j.stream, j.event)
		if err == nil {
			if attempt > 1 {
				s.logger.Info("event log write recovered",
					logging.String(logging.FieldEventType, "eventlog_write_recovered"),
					logging.String("event", string(j.event.Kind)),
					logging.Int("attempts", attempt),
				)
			}
			return
		}
		logging.WarnWithContext(s.logger, "event log write failed; retrying", "eventlog_write_failed",
			logging.String("event", string(j.event.Kind)),
			logging.String("stream", string(j.stream)),
			logging.Int("attempt", attempt),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that the sync folder is reachable and writable"),
			logging.String(logging.FieldImpact, "event is held in memory until the write succeeds"),
		)
		time.Sleep(s.retry)
	}
}

func (s *Store) write(stream Stream, ev Event) error {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()

	path := s.Path(stream, ev.Worker, ev.Timestamp)
	lock, err := lockFile(path)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat %s: %w", filepath.Base(path), err)
	}

	if info.Size() > 0 {
		if err := terminateTornRow(file, path, info.Size()); err != nil {
			file.Close()
			return err
		}
	}

	writer := csv.NewWriter(file)
	if info.Size() == 0 {
		if err := csvio.WriteBOM(file); err != nil {
			file.Close()
			return fmt.Errorf("write bom: %w", err)
		}
		created, err := NewEvent(ev.Timestamp, ev.Worker, KindLogFileCreated, WorkSession{File: filepath.Base(path)})
		if err != nil {
			file.Close()
			return err
		}
		if err := writer.Write(header); err != nil {
			file.Close()
			return fmt.Errorf("write header: %w", err)
		}
		if err := writer.Write(created.row()); err != nil {
			file.Close()
			return fmt.Errorf("write %s: %w", KindLogFileCreated, err)
		}
	}
	if err := writer.Write(ev.row()); err != nil {
		file.Close()
		return fmt.Errorf("write %s: %w", ev.Kind, err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		file.Close()
		return fmt.Errorf("flush %s: %w", ev.Kind, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("sync %s: %w", filepath.Base(path), err)
	}
	return file.Close()
}

// terminateTornRow starts a fresh line when a previous write was cut off
// mid-row, so the torn fragment stays isolated and readers can skip it.
func terminateTornRow(file *os.File, path string, size int64) error {
	reader, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer reader.Close()
	last := make([]byte, 1)
	if _, err := reader.ReadAt(last, size-1); err != nil {
		return fmt.Errorf("read tail of %s: %w", filepath.Base(path), err)
	}
	if last[0] == '\n' {
		return nil
	}
	if _, err := file.WriteString("\n"); err != nil {
		return fmt.Errorf("terminate torn row: %w", err)
	}
	return nil
}
