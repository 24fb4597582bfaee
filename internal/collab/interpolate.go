package collab

import (
	"math"
	"sort"
)

// Point is a display position in canvas pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) dist(q Point) float64 {
	return math.Hypot(q.X-p.X, q.Y-p.Y)
}

// Interpolator smooths remote drag samples for display. It never writes
// anything back to the store. It is not safe for concurrent use.
type Interpolator struct {
	enabled   bool
	maxStep   float64
	threshold float64

	tracks map[string]*track
}

type track struct {
	current Point
	target  Point
}

func NewInterpolator(enabled bool, maxStep, threshold float64) *Interpolator {
	return &Interpolator{
		enabled:   enabled,
		maxStep:   maxStep,
		threshold: threshold,
		tracks:    make(map[string]*track),
	}
}

func (in *Interpolator) Enabled() bool {
	return in.enabled
}

// Push records a sample for id. It returns the display position when that
// position changed right away: the first sample snaps, and with
// interpolation disabled every sample past the threshold is shown raw.
func (in *Interpolator) Push(id string, p Point) (Point, bool) {
	t, ok := in.tracks[id]
	if !ok {
		in.tracks[id] = &track{current: p, target: p}
		return p, true
	}
	if t.target.dist(p) < in.threshold {
		return t.current, false
	}
	t.target = p
	if !in.enabled {
		t.current = p
		return p, true
	}
	return t.current, false
}

// Advance moves every track one frame toward its target and returns the ids
// whose display position changed, with their new positions.
func (in *Interpolator) Advance() map[string]Point {
	if !in.enabled {
		return nil
	}
	var moved map[string]Point
	for id, t := range in.tracks {
		d := t.current.dist(t.target)
		if d == 0 {
			continue
		}
		if d <= in.maxStep {
			t.current = t.target
		} else {
			f := in.maxStep / d
			t.current = Point{
				X: t.current.X + (t.target.X-t.current.X)*f,
				Y: t.current.Y + (t.target.Y-t.current.Y)*f,
			}
		}
		if moved == nil {
			moved = make(map[string]Point)
		}
		moved[id] = t.current
	}
	return moved
}

func (in *Interpolator) Position(id string) (Point, bool) {
	t, ok := in.tracks[id]
	if !ok {
		return Point{}, false
	}
	return t.current, true
}

func (in *Interpolator) Remove(id string) {
	delete(in.tracks, id)
}

// IDs lists tracked ids in order.
func (in *Interpolator) IDs() []string {
	ids := make([]string, 0, len(in.tracks))
	for id := range in.tracks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
