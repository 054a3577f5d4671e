package pattern

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"telekinesis/internal/actuation"
)

const (
	vibratorSuffix = ".vibrator.funscript"
	strokerSuffix  = ".funscript"
)

// funscript is the on-disk pattern format: positions (0..100) at millisecond offsets.
type funscript struct {
	Actions []funscriptAction `json:"actions"`
}

type funscriptAction struct {
	At  int64 `json:"at"`
	Pos int64 `json:"pos"`
}

// ParseFunscript decodes funscript JSON into control points.
func ParseFunscript(r io.Reader) ([]Point, error) {
	var fsc funscript
	if err := json.NewDecoder(r).Decode(&fsc); err != nil {
		return nil, fmt.Errorf("funscript decode: %w", err)
	}
	pts := make([]Point, 0, len(fsc.Actions))
	for _, a := range fsc.Actions {
		pts = append(pts, Point{
			At:        time.Duration(a.At) * time.Millisecond,
			Intensity: actuation.NewSpeed(a.Pos),
		})
	}
	return pts, nil
}

// EncodeFunscript writes points in funscript JSON.
func EncodeFunscript(w io.Writer, pts []Point) error {
	fsc := funscript{Actions: make([]funscriptAction, 0, len(pts))}
	for _, p := range pts {
		fsc.Actions = append(fsc.Actions, funscriptAction{At: p.At.Milliseconds(), Pos: int64(p.Intensity.Value())})
	}
	return json.NewEncoder(w).Encode(fsc)
}

// DirStore reads funscript files from a directory.
//
// "<name>.vibrator.funscript" is a vibration pattern, any other
// "<name>.funscript" a stroker pattern. Load prefers the vibration file.
type DirStore struct {
	Dir string
}

func NewDirStore(dir string) *DirStore { return &DirStore{Dir: dir} }

func (s *DirStore) Load(ctx context.Context, name string) ([]Point, error) {
	return s.load(ctx, name, vibratorSuffix, strokerSuffix)
}

// LoadKind reads only the file of the given kind.
func (s *DirStore) LoadKind(ctx context.Context, name string, kind Kind) ([]Point, error) {
	if kind == KindStroker {
		return s.load(ctx, name, strokerSuffix)
	}
	return s.load(ctx, name, vibratorSuffix)
}

func (s *DirStore) load(ctx context.Context, name string, suffixes ...string) ([]Point, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	for _, suffix := range suffixes {
		f, err := os.Open(filepath.Join(s.Dir, name+suffix))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		pts, err := ParseFunscript(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", name, err)
		}
		return pts, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
}

func (s *DirStore) Names(ctx context.Context, kind Kind) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		n := e.Name()
		switch {
		case strings.HasSuffix(n, vibratorSuffix):
			if kind == KindVibrator {
				out = append(out, strings.TrimSuffix(n, vibratorSuffix))
			}
		case strings.HasSuffix(n, strokerSuffix):
			if kind == KindStroker {
				out = append(out, strings.TrimSuffix(n, strokerSuffix))
			}
		}
	}
	sort.Strings(out)
	return out, nil
}
