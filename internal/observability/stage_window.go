package observability

import (
	"maps"
	"math"
	"slices"
	"strings"
	"sync"
	"time"
)

const (
	StageContext   = "context_ready"
	StageDocuments = "documents_ready"
	StageSearch    = "search_ready"
	StageLLM       = "llm_reply"
	StageTurnTotal = "turn_total"
)

// stageTargets are the p95 budgets, in milliseconds, shown next to each stage.
var stageTargets = map[string]float64{
	StageContext:   150,
	StageDocuments: 1500,
	StageSearch:    4000,
	StageLLM:       8000,
	StageTurnTotal: 12000,
}

type StageStats struct {
	Stage       string  `json:"stage"`
	Samples     int     `json:"samples"`
	LastMS      float64 `json:"last_ms"`
	AvgMS       float64 `json:"avg_ms"`
	P50MS       float64 `json:"p50_ms"`
	P95MS       float64 `json:"p95_ms"`
	P99MS       float64 `json:"p99_ms"`
	TargetP95MS float64 `json:"target_p95_ms,omitempty"`
}

type Indicator struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type StageSnapshot struct {
	GeneratedAt time.Time    `json:"generated_at"`
	WindowSize  int          `json:"window_size"`
	Stages      []StageStats `json:"stages"`
	Indicators  []Indicator  `json:"indicators,omitempty"`
}

// StageWindow keeps the last N durations of each chat send stage plus
// running counts of indicators such as search_empty.
type StageWindow struct {
	mu         sync.Mutex
	size       int
	rings      map[string]*durationRing
	indicators map[string]int
}

// durationRing overwrites its oldest sample once full.
type durationRing struct {
	samples []time.Duration
	pos     int
}

func (r *durationRing) push(d time.Duration, size int) {
	if len(r.samples) < size {
		r.samples = append(r.samples, d)
		return
	}
	r.samples[r.pos] = d
	r.pos = (r.pos + 1) % size
}

func (r *durationRing) latest() time.Duration {
	if len(r.samples) < cap(r.samples) || r.pos == 0 {
		return r.samples[len(r.samples)-1]
	}
	return r.samples[r.pos-1]
}

func NewStageWindow(size int) *StageWindow {
	if size <= 0 {
		size = 256
	}
	return &StageWindow{
		size:       size,
		rings:      make(map[string]*durationRing),
		indicators: make(map[string]int),
	}
}

func (w *StageWindow) Observe(stage string, d time.Duration) {
	if w == nil || stage == "" || d < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	r := w.rings[stage]
	if r == nil {
		r = &durationRing{samples: make([]time.Duration, 0, w.size)}
		w.rings[stage] = r
	}
	r.push(d, w.size)
}

// Count bumps the named indicator.
func (w *StageWindow) Count(name string) {
	name = strings.TrimSpace(name)
	if w == nil || name == "" {
		return
	}
	w.mu.Lock()
	w.indicators[name]++
	w.mu.Unlock()
}

func (w *StageWindow) Snapshot() StageSnapshot {
	snap := StageSnapshot{GeneratedAt: time.Now().UTC(), Stages: []StageStats{}}
	if w == nil {
		return snap
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	snap.WindowSize = w.size
	for _, stage := range slices.Sorted(maps.Keys(w.rings)) {
		r := w.rings[stage]
		if len(r.samples) == 0 {
			continue
		}
		snap.Stages = append(snap.Stages, summarize(stage, r))
	}
	for _, name := range slices.Sorted(maps.Keys(w.indicators)) {
		snap.Indicators = append(snap.Indicators, Indicator{Name: name, Count: w.indicators[name]})
	}
	return snap
}

func summarize(stage string, r *durationRing) StageStats {
	sorted := slices.Clone(r.samples)
	slices.Sort(sorted)

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}
	return StageStats{
		Stage:       stage,
		Samples:     len(sorted),
		LastMS:      millis(r.latest()),
		AvgMS:       millis(sum / time.Duration(len(sorted))),
		P50MS:       millis(nearestRank(sorted, 0.50)),
		P95MS:       millis(nearestRank(sorted, 0.95)),
		P99MS:       millis(nearestRank(sorted, 0.99)),
		TargetP95MS: stageTargets[stage],
	}
}

// nearestRank expects sorted to be non-empty and ascending.
func nearestRank(sorted []time.Duration, q float64) time.Duration {
	rank := int(math.Ceil(q * float64(len(sorted))))
	rank = min(max(rank, 1), len(sorted))
	return sorted[rank-1]
}

func millis(d time.Duration) float64 {
	return math.Round(float64(d.Microseconds())/10) / 100
}
