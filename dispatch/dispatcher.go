// Package dispatch 负责算法实例的运行期治理：
// 打分/训练的串行化、训练门控表达式，以及影子打分的并发扇出。
package dispatch

import (
	"context"
	"sync"

	"github.com/rushteam/ranklearn/algo"
	"github.com/rushteam/ranklearn/core"
	"github.com/rushteam/ranklearn/pkg/dsl"
)

// Dispatcher 包装一个算法实例并保证其串行使用：
// 算法实现不要求并发安全，所有入口统一过实例级互斥。
// 可选的 train_if 门控表达式决定一次选择事件是否进入训练。
type Dispatcher struct {
	mu   sync.Mutex
	algo algo.Algorithm
	gate *dsl.Predicate
}

// New 创建调度器。trainIf 为空时所有事件都进入训练。
func New(a algo.Algorithm, trainIf string) (*Dispatcher, error) {
	gate, err := dsl.NewPredicate(trainIf)
	if err != nil {
		return nil, core.NewDomainError(core.ModuleDispatch, core.ErrorCodeInvalidConfig,
			"dispatch: bad train_if expression: "+err.Error())
	}
	return &Dispatcher{algo: a, gate: gate}, nil
}

// Algorithm 返回被包装的算法名。
func (d *Dispatcher) Algorithm() string { return d.algo.Name() }

// Warm 预热：显式加载权重，避免首个请求付出加载延迟。
func (d *Dispatcher) Warm(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.algo.LoadWeights(ctx)
}

// Score 对单条特征向量打分。
func (d *Dispatcher) Score(features []float64) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.algo.CalculateScore(features)
}

// ScoreAll 对候选集逐一打分并回填 Score 字段。
// 任一候选打分失败即中止：半打分的列表比失败更危险。
func (d *Dispatcher) ScoreAll(candidates []*core.Candidate) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range candidates {
		if c == nil {
			continue
		}
		score, err := d.algo.CalculateScore(c.Features)
		if err != nil {
			return err
		}
		c.Score = score
	}
	return nil
}

// Feedback 消费一次选择事件：先过门控表达式，再进入训练。
// 返回事件是否真正进入了训练。
func (d *Dispatcher) Feedback(ctx context.Context, ev *core.SelectionEvent, tel core.Telemetry) (bool, error) {
	if ev == nil || ev.Selected == nil {
		return false, core.NewDomainError(core.ModuleDispatch, core.ErrorCodeInvalidInput,
			"dispatch: selection event with a selected candidate is required")
	}

	input := ev.EventInput()
	input["selected_rank"] = ev.SelectedRank()
	ok, err := d.gate.Evaluate(input)
	if err != nil {
		return false, core.NewDomainError(core.ModuleDispatch, core.ErrorCodeInvalidInput,
			"dispatch: train_if evaluation failed: "+err.Error())
	}
	if !ok {
		return false, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.algo.UpdateWeights(ctx, ev.Selected, ev.Ranked, tel); err != nil {
		return false, err
	}
	return true, nil
}
