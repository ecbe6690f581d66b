package state

import (
	"math/rand"
	"testing"

	"github.com/rushteam/ranklearn/core"
	"github.com/rushteam/ranklearn/nn"
	"github.com/rushteam/ranklearn/optim"
	"github.com/rushteam/ranklearn/train"
)

func newNet(t *testing.T, arch ...int) *nn.Network {
	t.Helper()
	return nn.New(arch, rand.New(rand.NewSource(7)))
}

func TestSnapshotRoundTrip(t *testing.T) {
	net := newNet(t, 4, 3, 1)
	opt := optim.NewAdamW(optim.Config{LearningRate: 0.001})
	history := train.NewHistory(10)
	history.Append(train.Pair{
		Positive: []float64{1, 0, 0.5, 0.2}, Negative: []float64{0, 1, 0.1, 0.8},
		PositiveID: "p", NegativeID: "n",
	})
	stats := train.NewStats()
	stats.Loss.Push(0.42)
	stats.SamplesProcessed = 5
	stats.BatchesTrained = 2

	data, err := Snapshot(net, opt, history, stats).Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	doc, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if doc.Version != CurrentVersion {
		t.Errorf("version = %q, want %q", doc.Version, CurrentVersion)
	}
	if doc.OptimizerType != optim.TypeAdamW {
		t.Errorf("optimizer type = %q, want adamw", doc.OptimizerType)
	}
	if len(doc.TrainingHistory) != 1 || doc.TrainingHistory[0].PositiveID != "p" {
		t.Errorf("history not preserved: %+v", doc.TrainingHistory)
	}
	if doc.Stats.SamplesProcessed != 5 || doc.Stats.BatchesTrained != 2 {
		t.Errorf("counters not preserved: %+v", doc.Stats)
	}

	res, err := Load(doc, LoadOptions{OptimizerType: optim.TypeAdamW})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for i := range net.Weights {
		r, c := net.Weights[i].Dims()
		for a := 0; a < r; a++ {
			for b := 0; b < c; b++ {
				if res.Net.Weights[i].At(a, b) != net.Weights[i].At(a, b) {
					t.Fatalf("layer %d weight (%d,%d) drifted through round trip", i, a, b)
				}
			}
		}
	}
	if len(res.Notes) != 0 {
		t.Errorf("clean round trip must not trigger migrations: %v", res.Notes)
	}
}

func TestUnmarshalRejectsBadDocuments(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "not json", data: "{nope"},
		{name: "no network", data: `{"version":"2.0-hinge"}`},
		{name: "arch weight mismatch", data: `{"version":"2.0-hinge","network":{"arch":[4,3,1],"weights":[[[1]]],"biases":[[0]]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal([]byte(tt.data))
			if err == nil {
				t.Fatal("want error")
			}
			de := core.GetDomainError(err)
			if de == nil || de.Code != core.ErrorCodeBadDocument {
				t.Errorf("error = %v, want BAD_DOCUMENT", err)
			}
		})
	}
}

func TestLoadLegacyVersionMigration(t *testing.T) {
	net := newNet(t, 4, 3, 1)
	opt := optim.NewAdamW(optim.Config{LearningRate: 0.001})
	history := train.NewHistory(10)
	history.Append(train.Pair{Positive: []float64{1, 0, 0, 0}, Negative: []float64{0, 1, 0, 0}})
	stats := train.NewStats()
	stats.Loss.Push(0.9)
	stats.SamplesProcessed = 7

	doc := Snapshot(net, opt, history, stats)
	doc.Version = VersionBCE
	doc.OptimizerType = optim.TypeSGD

	res, err := Load(doc, LoadOptions{OptimizerType: optim.TypeSGD})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	// 网络参数逐位保留
	for i := range net.Weights {
		r, c := net.Weights[i].Dims()
		for a := 0; a < r; a++ {
			for b := 0; b < c; b++ {
				if res.Net.Weights[i].At(a, b) != net.Weights[i].At(a, b) {
					t.Fatalf("layer %d weights must survive version migration bit-identical", i)
				}
			}
		}
	}
	// 历史与损失窗口清空、优化器状态归零、计数器保留
	if len(res.History) != 0 {
		t.Errorf("history must be dropped, got %d pairs", len(res.History))
	}
	if len(res.Stats.Loss) != 0 {
		t.Errorf("loss window must be dropped, got %v", res.Stats.Loss)
	}
	if res.OptState != nil {
		t.Errorf("optimizer state must reset, got %+v", res.OptState)
	}
	if res.Stats.SamplesProcessed != 7 {
		t.Errorf("monotonic counters must survive, got %d", res.Stats.SamplesProcessed)
	}
	if len(res.Notes) == 0 {
		t.Error("migration must be reported in notes")
	}
}

func TestLoadOptimizerTypeSwitchResetsState(t *testing.T) {
	net := newNet(t, 4, 3, 1)
	opt := optim.NewAdamW(optim.Config{LearningRate: 0.001})
	doc := Snapshot(net, opt, train.NewHistory(10), train.NewStats())

	res, err := Load(doc, LoadOptions{OptimizerType: optim.TypeSGD})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if res.OptState != nil {
		t.Errorf("state of mismatched optimizer must be dropped, got %+v", res.OptState)
	}
	if len(res.Notes) == 0 {
		t.Error("optimizer switch must be reported in notes")
	}
}

func TestLoadMissingOptimizerTypeDefaultsToSGD(t *testing.T) {
	net := newNet(t, 4, 3, 1)
	doc := Snapshot(net, nil, train.NewHistory(10), train.NewStats())
	doc.OptimizerState = &OptimizerStateDoc{Step: 12}

	res, err := Load(doc, LoadOptions{OptimizerType: optim.TypeSGD})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if res.OptState == nil || res.OptState.Step != 12 {
		t.Errorf("unlabelled state must restore as sgd, got %+v", res.OptState)
	}
}

func TestLoadFeatureGrowth(t *testing.T) {
	net := newNet(t, 4, 3, 1)
	opt := optim.NewAdamW(optim.Config{LearningRate: 0.001})
	history := train.NewHistory(10)
	history.Append(train.Pair{Positive: []float64{1, 2, 3, 4}, Negative: []float64{5, 6, 7, 8}})
	doc := Snapshot(net, opt, history, train.NewStats())

	res, err := Load(doc, LoadOptions{
		OptimizerType: optim.TypeAdamW,
		FeatureWidth:  6,
		Rng:           rand.New(rand.NewSource(1)),
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if res.Net.InputSize() != 6 {
		t.Fatalf("input size = %d, want 6", res.Net.InputSize())
	}
	// 旧权重行保留
	for i := 0; i < 4; i++ {
		for j := 0; j < 3; j++ {
			if res.Net.Weights[0].At(i, j) != net.Weights[0].At(i, j) {
				t.Fatalf("existing first layer rows must be preserved")
			}
		}
	}
	// 历史补零
	if len(res.History[0].Positive) != 6 || res.History[0].Positive[4] != 0 {
		t.Errorf("history must be zero-padded: %v", res.History[0].Positive)
	}
	if len(res.Notes) == 0 {
		t.Error("growth must be reported in notes")
	}
}

func TestLoadFeatureShrinkRejected(t *testing.T) {
	net := newNet(t, 4, 3, 1)
	doc := Snapshot(net, nil, train.NewHistory(10), train.NewStats())

	_, err := Load(doc, LoadOptions{OptimizerType: optim.TypeSGD, FeatureWidth: 2})
	if err == nil {
		t.Fatal("shrinking feature width must be rejected")
	}
	if !core.IsNotSupported(err) {
		t.Errorf("error = %v, want NOT_SUPPORTED", err)
	}
}

func TestLoadMissingRunningStatsReset(t *testing.T) {
	net := newNet(t, 4, 3, 1)
	doc := Snapshot(net, nil, train.NewHistory(10), train.NewStats())
	doc.Network.RunningMeans = nil
	doc.Network.RunningVars = nil

	res, err := Load(doc, LoadOptions{OptimizerType: optim.TypeSGD})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	bn := res.Net.Norms[0]
	for j := 0; j < 3; j++ {
		if bn.RunningMean.At(0, j) != 0 || bn.RunningVar.At(0, j) != 1 {
			t.Errorf("running stats must reset to mean=0/var=1, got %v/%v",
				bn.RunningMean.At(0, j), bn.RunningVar.At(0, j))
		}
	}
	if len(res.Notes) == 0 {
		t.Error("reset must be reported in notes")
	}
}

func TestDefaultDocumentDeterministic(t *testing.T) {
	a := DefaultDocument([]int{6, 4, 1})
	b := DefaultDocument([]int{6, 4, 1})
	for i := range a.Network.Weights {
		for r := range a.Network.Weights[i] {
			for c := range a.Network.Weights[i][r] {
				if a.Network.Weights[i][r][c] != b.Network.Weights[i][r][c] {
					t.Fatal("default weights must be identical across calls")
				}
			}
		}
	}
	if a.Version != CurrentVersion {
		t.Errorf("default version = %q", a.Version)
	}
}
