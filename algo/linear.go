package algo

import (
	"context"

	"github.com/rushteam/ranklearn/core"
	"github.com/rushteam/ranklearn/pkg/conv"
)

// NameLinear 是线性加权算法的注册名。
const NameLinear = "linear"

func init() {
	Register(NameLinear, func(deps Deps) Algorithm { return NewLinear(deps) })
}

// Linear 是固定权重的加权和打分：score = clamp(Σ w_i·x_i + bias, 0, 100)。
// 没有可学习状态，UpdateWeights 只根据选择事件微调 bias（rank-nudge）：
// 用户反复选中低排位项说明整体分值偏置失准。
// 适合做神经算法的对照基线或降级路径。
type Linear struct {
	deps    Deps
	weights []float64
	bias    float64
	nudge   float64
	inited  bool
}

// NewLinear 创建未配置的实例。
func NewLinear(deps Deps) *Linear {
	return &Linear{deps: deps}
}

func (a *Linear) Name() string { return NameLinear }

// Init 读取 weights（必填）、bias、nudge_rate。
func (a *Linear) Init(config map[string]any) error {
	raw, ok := config["weights"]
	if !ok {
		return invalidConfig("linear: weights is required")
	}
	ws, ok := conv.SliceToFloat64(raw)
	if !ok || len(ws) == 0 {
		return invalidConfig("linear: weights must be a non-empty list, got %v", raw)
	}
	a.weights = ws
	a.bias = conv.ConfigGetFloat64(config, "bias", 0)
	a.nudge = conv.ConfigGetFloat64(config, "nudge_rate", 0)
	if a.nudge < 0 {
		return invalidConfig("linear: nudge_rate must be non-negative, got %v", a.nudge)
	}
	a.inited = true
	return nil
}

// LoadWeights 无事可做：权重来自配置。
func (a *Linear) LoadWeights(ctx context.Context) error {
	if !a.inited {
		return core.NewDomainError(core.ModuleAlgo, core.ErrorCodeNotReady,
			"algo: linear is not configured, call Init first")
	}
	return nil
}

func (a *Linear) CalculateScore(features []float64) (float64, error) {
	if !a.inited {
		return 0, core.NewDomainError(core.ModuleAlgo, core.ErrorCodeNotReady,
			"algo: linear is not configured, call Init first")
	}
	sum := a.bias
	n := len(a.weights)
	if len(features) < n {
		n = len(features)
	}
	for i := 0; i < n; i++ {
		sum += a.weights[i] * features[i]
	}
	if sum < 0 {
		return 0, nil
	}
	if sum > 100 {
		return 100, nil
	}
	return sum, nil
}

// UpdateWeights 只做 bias 微调：被选中项排位越低，向上调得越多。
func (a *Linear) UpdateWeights(ctx context.Context, selected *core.Candidate, ranked []*core.Candidate, tel core.Telemetry) error {
	if !a.inited {
		return core.NewDomainError(core.ModuleAlgo, core.ErrorCodeNotReady,
			"algo: linear is not configured, call Init first")
	}
	if selected == nil || a.nudge == 0 {
		return nil
	}
	ev := core.SelectionEvent{Selected: selected, Ranked: ranked}
	if rank := ev.SelectedRank(); rank > 0 {
		a.bias += a.nudge * float64(rank)
	}
	return nil
}

var _ Algorithm = (*Linear)(nil)
