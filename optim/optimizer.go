// Package optim 提供两个可互换的优化器：带 warmup 的朴素 SGD，
// 以及带 warmup 与解耦权重衰减的 AdamW。二者消费梯度并原地更新网络参数。
package optim

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/rushteam/ranklearn/core"
	"github.com/rushteam/ranklearn/nn"
)

// 优化器类型标签（持久化文档中使用同名字符串）
const (
	TypeSGD   = "sgd"
	TypeAdamW = "adamw"
)

// Config 是优化器的超参数集合。
type Config struct {
	LearningRate          float64
	WeightDecay           float64   // 0 表示不衰减
	WarmupSteps           int       // 0 表示关闭 warmup
	WarmupStartFactor     float64   // warmup 起始学习率系数
	LayerDecayMultipliers []float64 // 按层缩放权重衰减，可选

	// AdamW 专用
	Beta1   float64
	Beta2   float64
	Epsilon float64
}

// Optimizer 是统一的 apply 接口：消费梯度、推进时间步、原地更新参数。
// 避免把按类型分支散落到各处（优化器行为差异全部收敛在实现内部）。
type Optimizer interface {
	Name() string

	// Apply 执行一次参数更新（一个训练 batch 一步）。
	Apply(net *nn.Network, g *nn.Gradients)

	// State 导出带标签的优化器状态（用于持久化）。
	State() *State
	// LoadState 恢复优化器状态；类型标签不匹配时报错。
	LoadState(s *State) error
	// Reset 清空状态（优化器类型或损失函数版本变更时调用）。
	Reset()
}

// State 是带标签的优化器状态变体：
// SGD 只有时间步（warmup 需要）；AdamW 另有与网络同形的一/二阶矩。
type State struct {
	Type string
	Step int
	M    *Moments // 仅 AdamW
	V    *Moments // 仅 AdamW
}

// Moments 与网络参数逐张量同形。
type Moments struct {
	Weights []*mat.Dense
	Biases  []*mat.Dense
	Gammas  []*mat.Dense
	Betas   []*mat.Dense
}

// NewMoments 创建与网络同形的全零矩集合。
func NewMoments(net *nn.Network) *Moments {
	layers := net.NumLayers()
	m := &Moments{
		Weights: make([]*mat.Dense, layers),
		Biases:  make([]*mat.Dense, layers),
		Gammas:  make([]*mat.Dense, layers-1),
		Betas:   make([]*mat.Dense, layers-1),
	}
	for i := 0; i < layers; i++ {
		r, c := net.Weights[i].Dims()
		m.Weights[i] = mat.NewDense(r, c, nil)
		br, bc := net.Biases[i].Dims()
		m.Biases[i] = mat.NewDense(br, bc, nil)
	}
	for i, bn := range net.Norms {
		if bn == nil {
			continue
		}
		_, c := bn.Gamma.Dims()
		m.Gammas[i] = mat.NewDense(1, c, nil)
		m.Betas[i] = mat.NewDense(1, c, nil)
	}
	return m
}

// ResetFirstLayer 只清零第一层权重矩（特征维度增长迁移后调用，
// 此时矩形状需重建以匹配新架构）。
func (s *State) ResetFirstLayer(net *nn.Network) {
	if s == nil || s.Type != TypeAdamW || s.M == nil || s.V == nil {
		return
	}
	r, c := net.Weights[0].Dims()
	s.M.Weights[0] = mat.NewDense(r, c, nil)
	s.V.Weights[0] = mat.NewDense(r, c, nil)
}

// New 按类型标签构建优化器。未识别的标签返回配置错误。
func New(typ string, cfg Config) (Optimizer, error) {
	switch typ {
	case TypeSGD:
		return NewSGD(cfg), nil
	case TypeAdamW:
		return NewAdamW(cfg), nil
	default:
		return nil, core.NewDomainError(core.ModuleAlgo, core.ErrorCodeInvalidConfig,
			fmt.Sprintf("optim: unknown optimizer type %q", typ))
	}
}

// warmupFactor 计算线性 warmup 系数：
// t ≤ warmup 时为 start + (t/warmup)·(1−start)，否则为 1；warmup=0 关闭。
func warmupFactor(step, warmupSteps int, startFactor float64) float64 {
	if warmupSteps <= 0 || step > warmupSteps {
		return 1.0
	}
	return startFactor + float64(step)/float64(warmupSteps)*(1.0-startFactor)
}

// layerDecay 返回第 i 层的有效衰减系数。
func (c Config) layerDecay(layer int) float64 {
	d := c.WeightDecay
	if layer < len(c.LayerDecayMultipliers) {
		d *= c.LayerDecayMultipliers[layer]
	}
	return d
}
