package pattern

import (
	"context"
	"errors"
	"sort"
)

// Kind separates patterns authored for vibration from those for strokers.
type Kind int

const (
	KindVibrator Kind = iota
	KindStroker
)

func (k Kind) String() string {
	if k == KindStroker {
		return "stroker"
	}
	return "vibrator"
}

// Store maps pattern names to raw control points.
// Load returns ErrNotFound (possibly wrapped) for unknown names.
type Store interface {
	Load(ctx context.Context, name string) ([]Point, error)
	Names(ctx context.Context, kind Kind) ([]string, error)
}

// Chain queries stores in order; the first store that knows a name wins.
type Chain []Store

func (c Chain) Load(ctx context.Context, name string) ([]Point, error) {
	for _, s := range c {
		if s == nil {
			continue
		}
		pts, err := s.Load(ctx, name)
		if err == nil {
			return pts, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}

func (c Chain) Names(ctx context.Context, kind Kind) ([]string, error) {
	seen := map[string]struct{}{}
	var out []string
	for _, s := range c {
		if s == nil {
			continue
		}
		names, err := s.Names(ctx, kind)
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out, nil
}
