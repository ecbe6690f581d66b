package algo

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/rushteam/ranklearn/core"
	"github.com/rushteam/ranklearn/store"
)

func neuralConfigMap() map[string]any {
	return map[string]any{
		"architecture": []any{6, 4, 1},
		"optimizer":    "sgd",
		"batch_size":   4,
		"history_size": 100,
	}
}

func newLoadedNeural(t *testing.T, ws core.WeightStore) *Neural {
	t.Helper()
	a := NewNeural(Deps{
		Weights:  ws,
		Notifier: core.NopNotifier{},
		Rng:      rand.New(rand.NewSource(11)),
	})
	if err := a.Init(neuralConfigMap()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := a.LoadWeights(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	return a
}

func TestNeuralScoreDeterministic(t *testing.T) {
	a := newLoadedNeural(t, nil)
	features := []float64{0.5, 1, 0, 0.25, 0.75, 0.1}

	first, err := a.CalculateScore(features)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	for i := 0; i < 10; i++ {
		got, err := a.CalculateScore(features)
		if err != nil || got != first {
			t.Fatalf("call %d: score = %v/%v, want %v", i, got, err, first)
		}
	}
}

func TestNeuralScoreBounded(t *testing.T) {
	a := newLoadedNeural(t, nil)
	rng := rand.New(rand.NewSource(3))

	for i := 0; i < 100; i++ {
		fs := make([]float64, 6)
		for j := range fs {
			fs[j] = rng.NormFloat64() * 1000
		}
		got, err := a.CalculateScore(fs)
		if err != nil {
			t.Fatalf("score: %v", err)
		}
		if got < 0 || got > 100 || math.IsNaN(got) {
			t.Fatalf("score %v out of [0,100]", got)
		}
	}
}

func TestNeuralScoreShortVectorDefaultsToZero(t *testing.T) {
	a := newLoadedNeural(t, nil)

	short, err := a.CalculateScore([]float64{0.5, 1})
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	full, err := a.CalculateScore([]float64{0.5, 1, 0, 0, 0, 0})
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if short != full {
		t.Errorf("short vector score %v != zero-padded score %v", short, full)
	}
}

func TestNeuralScoreLazyLoads(t *testing.T) {
	// Init 之后第一次打分按需加载权重，不要求显式 LoadWeights
	a := NewNeural(Deps{Rng: rand.New(rand.NewSource(11)), Notifier: core.NopNotifier{}})
	if err := a.Init(neuralConfigMap()); err != nil {
		t.Fatalf("init: %v", err)
	}
	got, err := a.CalculateScore([]float64{1, 2, 3, 4, 5, 6})
	if err != nil {
		t.Fatalf("first score must lazy-load weights: %v", err)
	}
	if got < 0 || got > 100 {
		t.Errorf("score %v out of [0,100]", got)
	}
	if !a.loaded {
		t.Error("weights must be loaded after first score")
	}
}

func TestNeuralScoreBeforeInitRejected(t *testing.T) {
	a := NewNeural(Deps{})
	_, err := a.CalculateScore([]float64{1, 2, 3, 4, 5, 6})
	de := core.GetDomainError(err)
	if de == nil || de.Code != core.ErrorCodeNotReady {
		t.Errorf("error = %v, want NOT_READY", err)
	}
}

func TestNeuralUpdatePersistsState(t *testing.T) {
	ms := store.NewMemoryStore()
	defer ms.Close()
	ws := store.NewWeights(ms)
	ctx := context.Background()

	a := newLoadedNeural(t, ws)

	ranked := make([]*core.Candidate, 0, 8)
	for i := 0; i < 8; i++ {
		ranked = append(ranked, core.NewCandidate(
			string(rune('a'+i)),
			[]float64{float64(i) / 8, 1, 0, 0.5, 0.2, 0.9}))
	}
	selected := ranked[5]

	if err := a.UpdateWeights(ctx, selected, ranked, nil); err != nil {
		t.Fatalf("update: %v", err)
	}
	if a.stats.SamplesProcessed == 0 {
		t.Error("samples_processed must advance")
	}

	// 新实例从存储恢复后统计一致
	b := newLoadedNeural(t, ws)
	if b.stats.SamplesProcessed != a.stats.SamplesProcessed {
		t.Errorf("restored samples = %d, want %d",
			b.stats.SamplesProcessed, a.stats.SamplesProcessed)
	}
	if b.history.Len() != a.history.Len() {
		t.Errorf("restored history = %d, want %d", b.history.Len(), a.history.Len())
	}
}

func TestNeuralUpdateLazyLoads(t *testing.T) {
	a := NewNeural(Deps{Rng: rand.New(rand.NewSource(5)), Notifier: core.NopNotifier{}})
	if err := a.Init(neuralConfigMap()); err != nil {
		t.Fatalf("init: %v", err)
	}

	selected := core.NewCandidate("s", []float64{1, 0, 0, 0, 0, 0})
	other := core.NewCandidate("o", []float64{0, 1, 0, 0, 0, 0})
	err := a.UpdateWeights(context.Background(), selected, []*core.Candidate{selected, other}, nil)
	if err != nil {
		t.Fatalf("update must lazy-load weights: %v", err)
	}
	if !a.loaded {
		t.Error("weights must be loaded after first update")
	}
}

func TestNeuralUpdateSoleCandidateIsNoop(t *testing.T) {
	a := newLoadedNeural(t, nil)
	selected := core.NewCandidate("s", []float64{1, 0, 0, 0, 0, 0})

	if err := a.UpdateWeights(context.Background(), selected, []*core.Candidate{selected}, nil); err != nil {
		t.Fatalf("update: %v", err)
	}
	if a.stats.SamplesProcessed != 0 || a.stats.BatchesTrained != 0 {
		t.Errorf("no pairs means no training, got samples=%d batches=%d",
			a.stats.SamplesProcessed, a.stats.BatchesTrained)
	}
}

func TestNeuralConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{name: "missing architecture", mutate: func(m map[string]any) { delete(m, "architecture") }},
		{name: "single layer", mutate: func(m map[string]any) { m["architecture"] = []any{6} }},
		{name: "zero width", mutate: func(m map[string]any) { m["architecture"] = []any{6, 0, 1} }},
		{name: "wide output", mutate: func(m map[string]any) { m["architecture"] = []any{6, 4, 2} }},
		{name: "missing optimizer", mutate: func(m map[string]any) { delete(m, "optimizer") }},
		{name: "unknown optimizer", mutate: func(m map[string]any) { m["optimizer"] = "momentum" }},
		{name: "dropout length", mutate: func(m map[string]any) { m["dropout"] = []any{0.2, 0.2} }},
		{name: "dropout range", mutate: func(m map[string]any) { m["dropout"] = []any{1.0} }},
		{name: "dropout_rates length", mutate: func(m map[string]any) { m["dropout_rates"] = []any{0.2, 0.2} }},
		{name: "dropout_rates range", mutate: func(m map[string]any) { m["dropout_rates"] = []any{1.5} }},
		{name: "negative lr", mutate: func(m map[string]any) { m["learning_rate"] = -0.1 }},
		{name: "match feature range", mutate: func(m map[string]any) { m["match_features"] = []any{9} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := neuralConfigMap()
			tt.mutate(cfg)
			a := NewNeural(Deps{})
			err := a.Init(cfg)
			if !core.IsInvalidConfig(err) {
				t.Errorf("error = %v, want INVALID_CONFIG", err)
			}
		})
	}
}

func TestRegistry(t *testing.T) {
	for _, name := range []string{NameNeural, NameLinear, NameNoop} {
		a, err := New(name, Deps{})
		if err != nil {
			t.Fatalf("New(%s): %v", name, err)
		}
		if a.Name() != name {
			t.Errorf("Name() = %q, want %q", a.Name(), name)
		}
	}
	if _, err := New("bogus", Deps{}); !core.IsInvalidConfig(err) {
		t.Errorf("unknown algorithm error = %v, want INVALID_CONFIG", err)
	}
}

func TestDebugReport(t *testing.T) {
	a := newLoadedNeural(t, nil)
	report := DebugReport(a)
	for _, want := range []string{"architecture", "sgd", "samples processed"} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}
	if got := DebugReport(nil); !strings.Contains(got, "not configured") {
		t.Errorf("nil report = %q", got)
	}
}
