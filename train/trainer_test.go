package train

import (
	"math/rand"
	"testing"
	"time"

	"github.com/rushteam/ranklearn/core"
	"github.com/rushteam/ranklearn/nn"
	"github.com/rushteam/ranklearn/optim"
)

func newTestTrainer(t *testing.T, arch []int, cfg Config) *Trainer {
	t.Helper()
	if cfg.Margin == 0 {
		cfg.Margin = DefaultMargin
	}
	if cfg.ClipNorm == 0 {
		cfg.ClipNorm = DefaultClipNorm
	}
	rng := rand.New(rand.NewSource(42))
	return &Trainer{
		Net:     nn.New(arch, rng),
		Opt:     optim.NewSGD(optim.Config{LearningRate: 0.01}),
		History: NewHistory(100),
		Stats:   NewStats(),
		Cfg:     cfg,
		Rng:     rng,
		Clock:   core.SystemClock{},
	}
}

func candidate(id string, v float64) *core.Candidate {
	return core.NewCandidate(id, []float64{v, v / 2, 1 - v, 0.5, v * v, 0, 1, v, 0.3, 0.7})
}

func TestBuildPairsHardNegatives(t *testing.T) {
	tr := newTestTrainer(t, []int{10, 4, 1}, Config{BatchSize: 4, BatchesPerUpdate: 1})

	selected := candidate("sel", 0.9)
	ranked := []*core.Candidate{selected}
	for i := 0; i < 15; i++ {
		ranked = append(ranked, candidate(string(rune('a'+i)), float64(i)/15))
	}

	pairs := tr.BuildPairs(selected, ranked)

	if len(pairs) != MaxHardNegatives {
		t.Fatalf("pair count = %d, want %d", len(pairs), MaxHardNegatives)
	}
	for _, p := range pairs {
		if p.PositiveID != "sel" {
			t.Errorf("positive id = %v, want sel", p.PositiveID)
		}
		if p.NegativeID == "sel" {
			t.Error("selected item must never be its own negative")
		}
	}
}

func TestBuildPairsSharedMatchDropout(t *testing.T) {
	// match_dropout=1 时每条 pair 都触发：匹配类特征必须在正负两侧同时置零
	tr := newTestTrainer(t, []int{10, 4, 1}, Config{
		BatchSize:        4,
		BatchesPerUpdate: 1,
		MatchDropout:     1.0,
		MatchFeatures:    []int{0, 1},
	})

	selected := candidate("sel", 0.9)
	other := candidate("x", 0.4)
	pairs := tr.BuildPairs(selected, []*core.Candidate{selected, other})

	if len(pairs) != 1 {
		t.Fatalf("pair count = %d, want 1", len(pairs))
	}
	p := pairs[0]
	for _, i := range []int{0, 1} {
		if p.Positive[i] != 0 || p.Negative[i] != 0 {
			t.Errorf("match feature %d not zeroed on both sides: pos=%v neg=%v", i, p.Positive[i], p.Negative[i])
		}
	}
	// 其它特征不受影响
	if p.Positive[2] != selected.Features[2] {
		t.Errorf("non-match feature mutated: %v", p.Positive[2])
	}
	// 入参候选自身保持只读
	if selected.Features[0] == 0 {
		t.Error("input candidate features must never be mutated")
	}
}

func TestUpdateBelowThresholdSkips(t *testing.T) {
	// 架构 [10,4,1]、sgd、batch_size=4：仅 1 条 pair < ceil(4·0.5)=2，
	// batches_trained 保持 0，但 samples_processed 加 1
	tr := newTestTrainer(t, []int{10, 4, 1}, Config{BatchSize: 4, BatchesPerUpdate: 2})

	selected := candidate("b", 0.8)
	ranked := []*core.Candidate{candidate("a", 0.6), selected}
	pairs := tr.BuildPairs(selected, ranked)
	if len(pairs) != 1 {
		t.Fatalf("pair count = %d, want 1", len(pairs))
	}

	trained := tr.Update(pairs)

	if trained != 0 || tr.Stats.BatchesTrained != 0 {
		t.Errorf("batches trained = %d/%d, want 0", trained, tr.Stats.BatchesTrained)
	}
	if tr.Stats.SamplesProcessed != 1 {
		t.Errorf("samples processed = %d, want 1", tr.Stats.SamplesProcessed)
	}
	// pair 仍然入史
	if tr.History.Len() != 1 {
		t.Errorf("history length = %d, want 1", tr.History.Len())
	}
}

func TestUpdateTrainsAndRecordsStats(t *testing.T) {
	tr := newTestTrainer(t, []int{10, 4, 1}, Config{BatchSize: 4, BatchesPerUpdate: 2})

	selected := candidate("sel", 0.9)
	ranked := []*core.Candidate{selected}
	for i := 0; i < 6; i++ {
		ranked = append(ranked, candidate(string(rune('a'+i)), float64(i)/6))
	}
	pairs := tr.BuildPairs(selected, ranked)

	trained := tr.Update(pairs)

	if trained < 1 {
		t.Fatalf("trained = %d, want ≥1", trained)
	}
	if tr.Stats.BatchesTrained != int64(trained) {
		t.Errorf("BatchesTrained = %d, want %d", tr.Stats.BatchesTrained, trained)
	}
	if tr.Stats.Loss.Len() != trained {
		t.Errorf("loss entries = %d, want %d", tr.Stats.Loss.Len(), trained)
	}
	if tr.Stats.Timings.Len() != trained {
		t.Errorf("timing entries = %d, want %d", tr.Stats.Timings.Len(), trained)
	}
	if len(tr.Stats.WeightL2) != 2 || len(tr.Stats.WeightAvgMag) != 2 {
		t.Errorf("per-layer weight stats missing: %v %v", tr.Stats.WeightL2, tr.Stats.WeightAvgMag)
	}
	if tr.History.Len() != len(pairs) {
		t.Errorf("history length = %d, want %d", tr.History.Len(), len(pairs))
	}
}

func TestFirstBatchPadsWithMostRecentHistory(t *testing.T) {
	tr := newTestTrainer(t, []int{10, 4, 1}, Config{BatchSize: 4, BatchesPerUpdate: 1})
	for i := 0; i < 6; i++ {
		tr.History.Append(Pair{
			Positive:   candidate("h", 0.5).Features,
			Negative:   candidate("n", 0.2).Features,
			PositiveID: "hist",
			NegativeID: string(rune('0' + i)),
		})
	}

	newPairs := []Pair{{
		Positive:   candidate("p", 0.9).Features,
		Negative:   candidate("q", 0.1).Features,
		PositiveID: "new",
		NegativeID: "q",
	}}
	batches := tr.assembleBatches(newPairs)

	if len(batches[0]) != 4 {
		t.Fatalf("first batch size = %d, want 4", len(batches[0]))
	}
	if batches[0][0].PositiveID != "new" {
		t.Error("first batch must lead with the new pairs")
	}
	// 补齐的是历史中最新的三条（NegativeID 5、4、3）
	for i, want := range []string{"5", "4", "3"} {
		if got := batches[0][1+i].NegativeID; got != want {
			t.Errorf("pad[%d] = %v, want %v", i, got, want)
		}
	}
}

func TestSubsequentBatchesSampleWithoutReplacement(t *testing.T) {
	tr := newTestTrainer(t, []int{10, 4, 1}, Config{BatchSize: 4, BatchesPerUpdate: 3})
	for i := 0; i < 12; i++ {
		tr.History.Append(Pair{PositiveID: "h", NegativeID: string(rune('a' + i)),
			Positive: make([]float64, 10), Negative: make([]float64, 10)})
	}

	newPairs := []Pair{{PositiveID: "new", NegativeID: "x",
		Positive: make([]float64, 10), Negative: make([]float64, 10)}}
	batches := tr.assembleBatches(newPairs)

	seen := make(map[string]int)
	for _, b := range batches {
		for _, p := range b {
			if p.PositiveID == "h" {
				seen[p.NegativeID]++
			}
		}
	}
	for id, n := range seen {
		if n > 1 {
			t.Errorf("history pair %q drawn %d times within one update", id, n)
		}
	}
}

func TestCircularBuffersStayBounded(t *testing.T) {
	tr := newTestTrainer(t, []int{4, 3, 1}, Config{BatchSize: 2, BatchesPerUpdate: 1})
	tr.Cfg.ClipNorm = DefaultClipNorm

	pair := Pair{
		Positive:   []float64{1, 0, 0.5, 0.2},
		Negative:   []float64{0, 1, 0.1, 0.8},
		PositiveID: "p", NegativeID: "n",
	}
	for i := 0; i < 25; i++ {
		tr.Update([]Pair{pair, pair})
	}

	if tr.Stats.Timings.Len() > TimingHistoryCap {
		t.Errorf("timings length %d exceeds %d", tr.Stats.Timings.Len(), TimingHistoryCap)
	}
	if tr.Stats.Loss.Len() > LossHistoryCap {
		t.Errorf("loss length %d exceeds %d", tr.Stats.Loss.Len(), LossHistoryCap)
	}
	if tr.Stats.Timings.Len() != TimingHistoryCap {
		t.Errorf("timings length = %d, want %d after many batches", tr.Stats.Timings.Len(), TimingHistoryCap)
	}
}

func TestUpdateClockInjected(t *testing.T) {
	tr := newTestTrainer(t, []int{4, 3, 1}, Config{BatchSize: 2, BatchesPerUpdate: 1})
	tr.Clock = core.FixedClock{T: time.Unix(100, 0)}

	pair := Pair{
		Positive: []float64{1, 0, 0, 0}, Negative: []float64{0, 1, 0, 0},
		PositiveID: "p", NegativeID: "n",
	}
	tr.Update([]Pair{pair, pair})

	for _, timing := range tr.Stats.Timings.Values() {
		if timing.Forward != 0 || timing.Backward != 0 || timing.Update != 0 {
			t.Errorf("fixed clock must yield zero durations, got %+v", timing)
		}
	}
}
