package artifacts

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"qcstation/internal/failure"
	"qcstation/internal/fileutil"
	"qcstation/internal/logging"
)

// Store owns the artifact tree.
type Store struct {
	root      string
	labelsDir string
	renderer  Renderer
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.Mutex
	issued map[string]struct{}
}

// Option customizes a Store.
type Option func(*Store)

// WithRenderer sets the label renderer. The default discards labels.
func WithRenderer(r Renderer) Option {
	return func(s *Store) {
		if r != nil {
			s.renderer = r
		}
	}
}

// WithClock overrides the time source used for IDs and creation dates.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore returns a store rooted at root with labels under labelsDir.
func NewStore(root, labelsDir string, logger *slog.Logger, opts ...Option) *Store {
	if labelsDir == "" {
		labelsDir = filepath.Join(root, "labels")
	}
	s := &Store{
		root:      root,
		labelsDir: labelsDir,
		renderer:  NopRenderer{},
		logger:    logging.NewComponentLogger(logger, "artifacts"),
		now:       time.Now,
		issued:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewID returns an unused ID of the form PREFIX-YYYYMMDD-HHMMSSffffff. IDs
// issued in the same microsecond are bumped forward until unique.
func (s *Store) NewID(kind Kind, at time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		id := kind.Prefix() + at.Format("20060102-150405") + fmt.Sprintf("%06d", at.Nanosecond()/1000)
		if _, taken := s.issued[id]; !taken && !s.exists(kind, id, at) {
			s.issued[id] = struct{}{}
			return id
		}
		at = at.Add(time.Microsecond)
	}
}

func (s *Store) exists(kind Kind, id string, at time.Time) bool {
	_, err := os.Stat(s.dataPath(kind, at.Format("2006-01-02"), id))
	return err == nil
}

// Create assigns an ID and creation date when missing, writes the record and
// renders its label. The record write is atomic; a label failure is logged
// and does not undo the record.
func (s *Store) Create(a *Artifact) error {
	if a.Kind != KindRemnant && a.Kind != KindDefect {
		return failure.Wrap(failure.ErrValidation, "artifacts", "create", "unknown kind", nil)
	}
	if len(a.Barcodes) == 0 {
		return failure.Wrap(failure.ErrValidation, "artifacts", "create", "box has no units", nil)
	}
	now := s.now()
	if a.CreationDate.IsZero() {
		a.CreationDate = now
	}
	if a.ID == "" {
		a.ID = s.NewID(a.Kind, now)
	}
	a.Quantity = len(a.Barcodes)
	return s.Save(*a)
}

// Save writes a as its canonical record and renders the label.
func (s *Store) Save(a Artifact) error {
	path := s.dataPath(a.Kind, a.Day(), a.ID)
	if err := fileutil.WriteJSONAtomic(path, a); err != nil {
		return failure.Wrap(failure.ErrArtifactIO, "artifacts", "save", a.ID, err)
	}
	s.logger.Info("artifact saved",
		logging.String(logging.FieldEventType, "artifact_saved"),
		logging.String("artifact_id", a.ID),
		logging.String("kind", a.Kind.String()),
		logging.String("item_code", a.ItemCode),
		logging.Int("quantity", a.Quantity),
	)

	labelPath := s.LabelPath(a.Kind, a.Day(), a.ID)
	if err := s.renderer.Render(Descriptor(a), labelPath); err != nil {
		logging.WarnWithContext(s.logger, "label rendering failed", "label_render_failed",
			logging.String("artifact_id", a.ID),
			logging.String("path", labelPath),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "reprint the label with `qcstation artifacts show`"),
			logging.String(logging.FieldImpact, "box is recorded but has no printed label"),
		)
	}
	return nil
}

// Load finds the artifact with id in any dated folder.
func (s *Store) Load(id string) (Artifact, error) {
	kind, ok := KindOf(id)
	if !ok {
		return Artifact{}, failure.Wrap(failure.ErrValidation, "artifacts", "load", "unrecognized id "+id, nil)
	}
	path, err := s.find(kind, id)
	if err != nil {
		return Artifact{}, err
	}
	var a Artifact
	if _, err := fileutil.ReadJSON(path, &a); err != nil {
		return Artifact{}, failure.Wrap(failure.ErrArtifactIO, "artifacts", "load", id, err)
	}
	if a.Kind == 0 {
		a.Kind = kind
	}
	if a.ID == "" {
		a.ID = id
	}
	return a, nil
}

// Delete removes the record and every label image for id. Labels are found
// by searching both the dated folders and the flat labels folder.
func (s *Store) Delete(id string) error {
	kind, ok := KindOf(id)
	if !ok {
		return failure.Wrap(failure.ErrValidation, "artifacts", "delete", "unrecognized id "+id, nil)
	}
	path, err := s.find(kind, id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return failure.Wrap(failure.ErrArtifactIO, "artifacts", "delete", id, err)
	}
	s.removeDirIfEmpty(filepath.Dir(path))

	for _, label := range s.labelFiles(kind, id) {
		if err := fileutil.RemoveIfExists(label); err != nil {
			logging.WarnWithContext(s.logger, "label removal failed", "label_remove_failed",
				logging.String("artifact_id", id),
				logging.String("path", label),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "remove the stale label image manually"),
			)
		}
	}
	return nil
}

// List returns every artifact of kind, oldest first. Unreadable records are
// logged and skipped.
func (s *Store) List(kind Kind) ([]Artifact, error) {
	base := filepath.Join(s.root, kind.dataDir())
	var out []Artifact
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		id := strings.TrimSuffix(d.Name(), ".json")
		if k, ok := KindOf(id); !ok || k != kind {
			return nil
		}
		var a Artifact
		if _, err := fileutil.ReadJSON(path, &a); err != nil {
			logging.WarnWithContext(s.logger, "skipping unreadable artifact", "artifact_unreadable",
				logging.String("path", path),
				logging.Error(err),
			)
			return nil
		}
		if a.Kind == 0 {
			a.Kind = kind
		}
		if a.ID == "" {
			a.ID = id
		}
		out = append(out, a)
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, failure.Wrap(failure.ErrArtifactIO, "artifacts", "list", kind.String(), err)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreationDate.Equal(out[j].CreationDate) {
			return out[i].CreationDate.Before(out[j].CreationDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// LabelPath returns where the label image for id is rendered.
func (s *Store) LabelPath(kind Kind, day, id string) string {
	return filepath.Join(s.labelsDir, kind.labelDir(), day, id+".png")
}

func (s *Store) dataPath(kind Kind, day, id string) string {
	return filepath.Join(s.root, kind.dataDir(), day, id+".json")
}

func (s *Store) find(kind Kind, id string) (string, error) {
	base := filepath.Join(s.root, kind.dataDir())
	name := id + ".json"

	// The dated folder usually matches the date embedded in the id.
	if day, ok := dayFromID(kind, id); ok {
		candidate := filepath.Join(base, day, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	if _, err := os.Stat(filepath.Join(base, name)); err == nil {
		return filepath.Join(base, name), nil
	}

	entries, err := os.ReadDir(base)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", failure.Wrap(failure.ErrArtifactIO, "artifacts", "find", id, err)
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if !entries[i].IsDir() {
			continue
		}
		candidate := filepath.Join(base, entries[i].Name(), name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", failure.Wrap(failure.ErrNotFound, "artifacts", "find", id, nil)
}

func (s *Store) labelFiles(kind Kind, id string) []string {
	name := id + ".png"
	var found []string
	for _, flat := range []string{filepath.Join(s.labelsDir, name), filepath.Join(s.labelsDir, kind.labelDir(), name)} {
		if _, err := os.Stat(flat); err == nil {
			found = append(found, flat)
		}
	}
	matches, _ := filepath.Glob(filepath.Join(s.labelsDir, kind.labelDir(), "*", name))
	found = append(found, matches...)
	sidecars, _ := filepath.Glob(filepath.Join(s.labelsDir, kind.labelDir(), "*", name+".label.json"))
	return append(found, sidecars...)
}

func (s *Store) removeDirIfEmpty(dir string) {
	entries, err := os.ReadDir(dir)
	if err == nil && len(entries) == 0 {
		_ = os.Remove(dir)
	}
}

// dayFromID extracts YYYY-MM-DD from PREFIX-YYYYMMDD-....
func dayFromID(kind Kind, id string) (string, bool) {
	rest := id[len(kind.Prefix()):]
	if len(rest) < 8 {
		return "", false
	}
	day, err := time.Parse("20060102", rest[:8])
	if err != nil {
		return "", false
	}
	return day.Format("2006-01-02"), true
}
