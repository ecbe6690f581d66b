// Package nn 实现分层前向/反向计算引擎：线性层 → 批归一化 → leaky-ReLU → dropout，
// 以及推理期的参数融合缓存。网络状态由算法实例独占持有，包内不做任何加锁。
package nn

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/rushteam/ranklearn/tensor"
)

const (
	// BatchNormEps 是归一化分母中的 ε。
	BatchNormEps = 1e-5

	// VarianceFloor 是批方差下限：常量列/二值特征列的方差可能趋近 0，
	// 直接使用会导致数值爆炸。该值是工程钉死值，不做重新推导。
	VarianceFloor = 1e-5

	// DefaultBNMomentum 是运行统计量 EMA 的默认动量。
	DefaultBNMomentum = 0.1
)

// BatchNorm 是单个隐藏层的批归一化参数与运行统计量。
// 训练态用批统计量并更新 running = (1−m)·running + m·batch；
// 推理态优先使用运行统计量，缺失时回退批统计量。
type BatchNorm struct {
	Gamma       *mat.Dense // 1×n 缩放
	Beta        *mat.Dense // 1×n 平移
	RunningMean *mat.Dense // 1×n
	RunningVar  *mat.Dense // 1×n
	Momentum    float64

	// 训练态缓存，Backward 使用；推理态不保留
	input     *mat.Dense
	batchMean *mat.Dense
	batchVar  *mat.Dense
}

// NewBatchNorm 创建 n 维批归一化：γ=1、β=0、running mean=0、running var=1。
func NewBatchNorm(n int) *BatchNorm {
	gamma := mat.NewDense(1, n, nil)
	runVar := mat.NewDense(1, n, nil)
	for j := 0; j < n; j++ {
		gamma.Set(0, j, 1)
		runVar.Set(0, j, 1)
	}
	return &BatchNorm{
		Gamma:       gamma,
		Beta:        mat.NewDense(1, n, nil),
		RunningMean: mat.NewDense(1, n, nil),
		RunningVar:  runVar,
		Momentum:    DefaultBNMomentum,
	}
}

// Forward 执行 y = γ·(x−μ)/sqrt(σ²+ε) + β。
func (bn *BatchNorm) Forward(x *mat.Dense, training bool) *mat.Dense {
	var mean, variance *mat.Dense

	if training || bn.RunningMean == nil || bn.RunningVar == nil {
		mean = tensor.ColMean(x)
		variance = tensor.ColVariance(x, mean)
		floorVariance(variance)
	}

	if training {
		bn.input = tensor.Clone(x)
		bn.batchMean = mean
		bn.batchVar = variance
		bn.updateRunning(mean, variance)
	} else {
		bn.input, bn.batchMean, bn.batchVar = nil, nil, nil
		if bn.RunningMean != nil && bn.RunningVar != nil {
			mean = bn.RunningMean
			variance = bn.RunningVar
		}
	}

	return bn.normalize(x, mean, variance)
}

func (bn *BatchNorm) normalize(x, mean, variance *mat.Dense) *mat.Dense {
	r, c := x.Dims()
	out := mat.NewDense(r, c, nil)
	for j := 0; j < c; j++ {
		mu := mean.At(0, j)
		inv := 1.0 / math.Sqrt(variance.At(0, j)+BatchNormEps)
		g := bn.Gamma.At(0, j)
		b := bn.Beta.At(0, j)
		for i := 0; i < r; i++ {
			out.Set(i, j, g*(x.At(i, j)-mu)*inv+b)
		}
	}
	return out
}

func (bn *BatchNorm) updateRunning(mean, variance *mat.Dense) {
	_, c := mean.Dims()
	if bn.RunningMean == nil {
		bn.RunningMean = mat.NewDense(1, c, nil)
	}
	if bn.RunningVar == nil {
		bn.RunningVar = mat.NewDense(1, c, nil)
		for j := 0; j < c; j++ {
			bn.RunningVar.Set(0, j, 1)
		}
	}
	m := bn.Momentum
	if m == 0 {
		m = DefaultBNMomentum
	}
	for j := 0; j < c; j++ {
		bn.RunningMean.Set(0, j, (1-m)*bn.RunningMean.At(0, j)+m*mean.At(0, j))
		bn.RunningVar.Set(0, j, (1-m)*bn.RunningVar.At(0, j)+m*variance.At(0, j))
	}
}

// Backward 按标准批归一化链式法则计算精确梯度。
// dx 组合三项：缩放后的入梯度、去中心化修正项、方差修正项；
// dγ/dβ 为沿 batch 维的求和。要求上一次 Forward 为训练态。
func (bn *BatchNorm) Backward(dy *mat.Dense) (dx, dGamma, dBeta *mat.Dense) {
	x := bn.input
	r, c := x.Dims()
	n := float64(r)

	dGamma = mat.NewDense(1, c, nil)
	dBeta = mat.NewDense(1, c, nil)
	dx = mat.NewDense(r, c, nil)

	for j := 0; j < c; j++ {
		mu := bn.batchMean.At(0, j)
		inv := 1.0 / math.Sqrt(bn.batchVar.At(0, j)+BatchNormEps)
		g := bn.Gamma.At(0, j)

		var sumDy, sumDyXhat float64
		for i := 0; i < r; i++ {
			xhat := (x.At(i, j) - mu) * inv
			sumDy += dy.At(i, j)
			sumDyXhat += dy.At(i, j) * xhat
		}
		dGamma.Set(0, j, sumDyXhat)
		dBeta.Set(0, j, sumDy)

		for i := 0; i < r; i++ {
			xhat := (x.At(i, j) - mu) * inv
			// dx = γ·inv/N · (N·dy − Σdy − x̂·Σ(dy·x̂))
			dx.Set(i, j, g*inv/n*(n*dy.At(i, j)-sumDy-xhat*sumDyXhat))
		}
	}
	return dx, dGamma, dBeta
}

// ResetRunning 把运行统计量重置为 mean=0、var=1（加载旧文档缺字段时使用）。
func (bn *BatchNorm) ResetRunning() {
	_, c := bn.Gamma.Dims()
	bn.RunningMean = mat.NewDense(1, c, nil)
	bn.RunningVar = mat.NewDense(1, c, nil)
	for j := 0; j < c; j++ {
		bn.RunningVar.Set(0, j, 1)
	}
}

func floorVariance(v *mat.Dense) {
	_, c := v.Dims()
	for j := 0; j < c; j++ {
		if v.At(0, j) < VarianceFloor {
			v.Set(0, j, VarianceFloor)
		}
	}
}
