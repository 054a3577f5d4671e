package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"telekinesis/internal/pattern"
	logx "telekinesis/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.runs.jsonl                (append-only JSON Lines)
//   - <prefix>.patterns.snapshot.json    (periodic snapshot)
//   - <prefix>.patterns.journal.jsonl    (append-only journal)
//
// The journal is compacted into the snapshot once it holds compactEvery
// records, counting the ones replayed from earlier runs.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	runsPath string
	runsFile *os.File

	snapshotPath string
	journalFile  *os.File
	patterns     map[patternKey][]storedPoint

	journalWrites int
}

const compactEvery = 200

type patternKey struct {
	Name string       `json:"name"`
	Kind pattern.Kind `json:"kind"`
}

type patternRecord struct {
	patternKey
	Points []storedPoint `json:"points"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	runsPath := prefix + ".runs.jsonl"
	snapPath := prefix + ".patterns.snapshot.json"
	journalPath := prefix + ".patterns.journal.jsonl"

	rf, err := os.OpenFile(runsPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	patterns := map[patternKey][]storedPoint{}
	if err := loadSnapshot(snapPath, patterns); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("pattern snapshot unreadable", logx.String("path", snapPath), logx.Err(err))
	}
	replayed, err := replayJournal(journalPath, patterns)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("pattern journal unreadable", logx.String("path", journalPath), logx.Err(err))
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		_ = rf.Close()
		return nil, err
	}

	fs := &fileStore{
		log:           log,
		runsPath:      runsPath,
		runsFile:      rf,
		snapshotPath:  snapPath,
		journalFile:   jf,
		patterns:      patterns,
		journalWrites: replayed,
	}
	if replayed >= compactEvery {
		fs.mu.Lock()
		fs.maybeCompactLocked()
		fs.mu.Unlock()
	}
	return fs, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if s.runsFile != nil {
		errs = append(errs, s.runsFile.Close())
		s.runsFile = nil
	}
	if s.journalFile != nil {
		errs = append(errs, s.journalFile.Close())
		s.journalFile = nil
	}
	return errors.Join(errs...)
}

func (s *fileStore) AppendRun(ctx context.Context, r Run) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runsFile == nil {
		return ErrDisabled
	}
	return json.NewEncoder(s.runsFile).Encode(r)
}

func (s *fileStore) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.runsPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ring := make([]Run, 0, limit)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var r Run
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		if len(ring) == limit {
			copy(ring, ring[1:])
			ring = ring[:limit-1]
		}
		ring = append(ring, r)
	}
	return ring, sc.Err()
}

func (s *fileStore) PutPattern(ctx context.Context, name string, kind pattern.Kind, pts []pattern.Point) error {
	_ = ctx
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("pattern name is required")
	}
	if len(pts) == 0 {
		return fmt.Errorf("pattern %q: %w", name, pattern.ErrEmpty)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return ErrDisabled
	}
	rec := patternRecord{patternKey: patternKey{Name: name, Kind: kind}, Points: toStored(pts)}
	if err := json.NewEncoder(s.journalFile).Encode(rec); err != nil {
		return err
	}
	s.patterns[rec.patternKey] = rec.Points

	s.journalWrites++
	s.maybeCompactLocked()
	return nil
}

func (s *fileStore) maybeCompactLocked() {
	if s.journalWrites < compactEvery {
		return
	}
	if err := s.compactLocked(); err != nil {
		s.log.Debug("pattern compact failed", logx.Err(err))
		return
	}
	s.journalWrites = 0
}

func (s *fileStore) Load(ctx context.Context, name string) ([]pattern.Point, error) {
	_ = ctx
	name = strings.TrimSpace(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range []pattern.Kind{pattern.KindVibrator, pattern.KindStroker} {
		if sp, ok := s.patterns[patternKey{Name: name, Kind: k}]; ok {
			return fromStored(sp), nil
		}
	}
	return nil, fmt.Errorf("%w: %q", pattern.ErrNotFound, name)
}

func (s *fileStore) Names(ctx context.Context, kind pattern.Kind) ([]string, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for k := range s.patterns {
		if k.Kind == kind {
			out = append(out, k.Name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *fileStore) compactLocked() error {
	recs := make([]patternRecord, 0, len(s.patterns))
	for k, v := range s.patterns {
		recs = append(recs, patternRecord{patternKey: k, Points: v})
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Name != recs[j].Name {
			return recs[i].Name < recs[j].Name
		}
		return recs[i].Kind < recs[j].Kind
	})

	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(recs); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.journalFile.Seek(0, io.SeekEnd)
	return err
}

func loadSnapshot(path string, out map[patternKey][]storedPoint) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var recs []patternRecord
	if err := json.NewDecoder(f).Decode(&recs); err != nil {
		return err
	}
	for _, r := range recs {
		out[r.patternKey] = r.Points
	}
	return nil
}

// replayJournal applies the journal to out and reports how many records it
// held.
func replayJournal(path string, out map[patternKey][]storedPoint) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	n := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16<<20)
	for sc.Scan() {
		var r patternRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil || r.Name == "" {
			continue
		}
		out[r.patternKey] = r.Points
		n++
	}
	return n, sc.Err()
}
