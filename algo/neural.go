package algo

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/rushteam/ranklearn/core"
	"github.com/rushteam/ranklearn/nn"
	"github.com/rushteam/ranklearn/optim"
	"github.com/rushteam/ranklearn/state"
	"github.com/rushteam/ranklearn/train"
)

// NameNeural 是神经打分算法的注册名。
const NameNeural = "neural"

func init() {
	Register(NameNeural, func(deps Deps) Algorithm { return NewNeural(deps) })
}

// Neural 是在线学习的神经打分算法：
// 前向推理走融合缓存，选择事件驱动 pairwise hinge 训练，
// 每次更新后重建缓存并整体持久化。
//
// 实例内部不加锁：打分与训练的串行化由上层调度负责。
type Neural struct {
	deps Deps
	cfg  *neuralConfig

	net     *nn.Network
	fused   *nn.Fused
	opt     optim.Optimizer
	trainer *train.Trainer
	history *train.History
	stats   *train.Stats

	rng    *rand.Rand
	loaded bool
}

// NewNeural 创建未配置的实例。
func NewNeural(deps Deps) *Neural {
	rng := deps.Rng
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Neural{deps: deps, rng: rng}
}

func (a *Neural) Name() string { return NameNeural }

// Init 校验并应用配置。可重复调用：配置变更会丢弃已加载状态，
// 下次使用时重新走 LoadWeights。
func (a *Neural) Init(config map[string]any) error {
	cfg, err := parseNeuralConfig(config)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.net, a.fused, a.trainer = nil, nil, nil
	a.loaded = false
	return nil
}

// LoadWeights 从存储恢复模型状态并按需迁移；
// 找不到已保存状态时使用出厂默认权重。
func (a *Neural) LoadWeights(ctx context.Context) error {
	if a.cfg == nil {
		return core.NewDomainError(core.ModuleAlgo, core.ErrorCodeNotReady,
			"algo: neural is not configured, call Init first")
	}

	doc, err := a.fetchDocument(ctx)
	if err != nil {
		return err
	}

	res, err := state.Load(doc, state.LoadOptions{
		OptimizerType: a.cfg.OptimizerType,
		FeatureWidth:  a.cfg.featureWidth(),
		Rng:           a.rng,
	})
	if err != nil {
		return err
	}
	for _, note := range res.Notes {
		a.deps.notifier().Info("neural: " + note)
	}

	opt, err := optim.New(a.cfg.OptimizerType, a.cfg.Optimizer)
	if err != nil {
		return err
	}
	if res.OptState != nil {
		if err := opt.LoadState(res.OptState); err != nil {
			return err
		}
	}

	a.net = res.Net
	a.opt = opt
	a.history = train.NewHistory(a.cfg.HistorySize)
	a.history.Restore(res.History)
	a.stats = restoreStats(res.Stats)
	a.trainer = &train.Trainer{
		Net:     a.net,
		Opt:     a.opt,
		History: a.history,
		Stats:   a.stats,
		Cfg:     a.cfg.trainConfig(),
		Rng:     a.rng,
		Clock:   a.deps.clock(),
	}
	a.fused = nn.BuildFused(a.net)
	a.loaded = true
	return nil
}

// fetchDocument 读取持久化文档；不存在时生成出厂默认。
func (a *Neural) fetchDocument(ctx context.Context) (*state.Document, error) {
	if a.deps.Weights == nil {
		return state.DefaultDocument(a.cfg.Architecture), nil
	}
	data, err := a.deps.Weights.GetWeights(ctx, a.Name())
	if core.IsStoreNotFound(err) {
		a.deps.notifier().Info("neural: no saved weights, starting from factory defaults")
		return state.DefaultDocument(a.cfg.Architecture), nil
	}
	if err != nil {
		return nil, fmt.Errorf("algo: load weights: %w", err)
	}
	return state.Unmarshal(data)
}

// CalculateScore 对单条特征向量打分，返回 [0,100]。
// 权重按需加载：配置完成后的第一次打分触发 LoadWeights。
// 热路径走融合缓存；缓存缺失时回退完整前向。
func (a *Neural) CalculateScore(features []float64) (float64, error) {
	if a.cfg == nil {
		return 0, core.NewDomainError(core.ModuleAlgo, core.ErrorCodeNotReady,
			"algo: neural is not configured, call Init first")
	}
	if !a.loaded {
		if err := a.LoadWeights(context.Background()); err != nil {
			return 0, err
		}
	}
	if a.fused != nil {
		return a.fused.Score(features), nil
	}
	return a.scoreFull(features), nil
}

// scoreFull 是非融合的回退打分路径：推理态完整前向 + 饱和 sigmoid。
func (a *Neural) scoreFull(features []float64) float64 {
	width := a.net.InputSize()
	x := mat.NewDense(1, width, nil)
	n := width
	if len(features) < n {
		n = len(features)
	}
	for j := 0; j < n; j++ {
		x.Set(0, j, features[j])
	}
	out, _ := a.net.Forward(x, nn.ForwardOptions{Output: nn.OutputSigmoid})
	return out.At(0, 0) * nn.ScoreScale
}

// UpdateWeights 消费一次选择事件：构造偏好对、训练、重建融合缓存、持久化。
// 权重未加载时先行加载（进程启动后的第一次反馈可能早于显式预热）。
func (a *Neural) UpdateWeights(ctx context.Context, selected *core.Candidate, ranked []*core.Candidate, tel core.Telemetry) error {
	if a.cfg == nil {
		return core.NewDomainError(core.ModuleAlgo, core.ErrorCodeNotReady,
			"algo: neural is not configured, call Init first")
	}
	if selected == nil {
		return core.NewDomainError(core.ModuleAlgo, core.ErrorCodeInvalidInput,
			"algo: selected candidate is required")
	}
	if tel == nil {
		tel = core.NopTelemetry{}
	}
	if !a.loaded {
		if err := a.LoadWeights(ctx); err != nil {
			return err
		}
	}

	pairs := a.trainer.BuildPairs(selected, ranked)
	tel.AddMetadata("update_weights", map[string]any{
		"pair_count":  len(pairs),
		"ranked_size": len(ranked),
	})
	if len(pairs) == 0 {
		return nil
	}

	var trained int
	tel.Measure("train", func() {
		trained = a.trainer.Update(pairs)
	})

	if trained > 0 {
		// 参数变更后融合缓存立即失效，先重建再持久化
		a.fused = nn.BuildFused(a.net)
	}

	if a.deps.Weights != nil {
		doc := state.Snapshot(a.net, a.opt, a.history, a.stats)
		data, err := doc.Marshal()
		if err != nil {
			return fmt.Errorf("algo: marshal state: %w", err)
		}
		if err := a.deps.Weights.SaveWeights(ctx, a.Name(), data, tel); err != nil {
			return err
		}
	}
	return nil
}

// Stats 返回训练统计（观测/调试用）。未加载时返回 nil。
func (a *Neural) Stats() *train.Stats { return a.stats }

// Network 返回当前网络（调试渲染用）。未加载时返回 nil。
func (a *Neural) Network() *nn.Network { return a.net }

// restoreStats 从持久化形态恢复滚动统计。
func restoreStats(doc state.StatsDoc) *train.Stats {
	s := train.NewStats()
	for _, v := range doc.Loss {
		s.Loss.Push(v)
	}
	for _, v := range doc.Accuracy {
		s.Accuracy.Push(v)
	}
	s.SamplesProcessed = doc.SamplesProcessed
	s.BatchesTrained = doc.BatchesTrained
	return s
}
