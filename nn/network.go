package nn

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/rushteam/ranklearn/tensor"
)

// OutputMode 控制输出层形态。
type OutputMode int

const (
	// OutputLogits 输出层不做激活（训练时配合 pairwise hinge 使用）。
	OutputLogits OutputMode = iota
	// OutputSigmoid 输出层过饱和 sigmoid（推理回退路径使用）。
	OutputSigmoid
)

// Network 是网络参数的有序集合：每层 Weight(in×out)、Bias(1×out)，
// 隐藏层额外持有批归一化参数；输出层没有批归一化。
// 参数只能被优化器的 apply 步骤或状态迁移修改。
type Network struct {
	Arch    []int        // 层宽序列，len ≥ 2
	Weights []*mat.Dense // len = L
	Biases  []*mat.Dense // len = L
	Norms   []*BatchNorm // len = L−1，仅隐藏层
}

// New 按 He 初始化创建网络。
func New(arch []int, rng *rand.Rand) *Network {
	layers := len(arch) - 1
	n := &Network{
		Arch:    append([]int(nil), arch...),
		Weights: make([]*mat.Dense, layers),
		Biases:  make([]*mat.Dense, layers),
		Norms:   make([]*BatchNorm, layers-1),
	}
	for i := 0; i < layers; i++ {
		n.Weights[i] = tensor.RandHe(arch[i], arch[i+1], rng)
		n.Biases[i] = mat.NewDense(1, arch[i+1], nil)
		if i < layers-1 {
			n.Norms[i] = NewBatchNorm(arch[i+1])
		}
	}
	return n
}

// NumLayers 返回线性层数 L。
func (n *Network) NumLayers() int { return len(n.Weights) }

// InputSize 返回输入特征维度。
func (n *Network) InputSize() int { return n.Arch[0] }

// ForwardOptions 控制一次前向传播的形态。
type ForwardOptions struct {
	Training bool
	Dropout  []float64  // 每个隐藏层的 dropout 率，nil 表示全 0
	Output   OutputMode
	Rand     *rand.Rand // 训练态 dropout 掩码的随机源
}

// Cache 保存反向传播需要的中间量，仅训练态前向时填充。
type Cache struct {
	inputs []*mat.Dense // 每层的输入激活
	bnOut  []*mat.Dense // 隐藏层批归一化输出（leaky-ReLU 的输入）
	masks  []*mat.Dense // 隐藏层 dropout 掩码（已含 1/(1−rate) 缩放），无 dropout 时为 nil
}

// Forward 执行分层前向传播：z = x·W + b，隐藏层依次过批归一化、
// leaky-ReLU，训练态再做 inverted-scale dropout。
// 返回输出矩阵；训练态同时返回反向传播所需的 Cache，推理态 Cache 为 nil。
func (n *Network) Forward(x *mat.Dense, opt ForwardOptions) (*mat.Dense, *Cache) {
	layers := n.NumLayers()

	var cache *Cache
	if opt.Training {
		cache = &Cache{
			inputs: make([]*mat.Dense, layers),
			bnOut:  make([]*mat.Dense, layers-1),
			masks:  make([]*mat.Dense, layers-1),
		}
	}

	cur := x
	for i := 0; i < layers; i++ {
		if cache != nil {
			cache.inputs[i] = cur
		}

		z := tensor.MatMul(cur, n.Weights[i])
		tensor.AddBias(z, n.Biases[i])

		if i == layers-1 {
			if opt.Output == OutputSigmoid {
				z = tensor.Apply(tensor.Sigmoid, z)
			}
			cur = z
			continue
		}

		if n.Norms[i] != nil {
			z = n.Norms[i].Forward(z, opt.Training)
		}
		if cache != nil {
			cache.bnOut[i] = z
		}

		a := tensor.Apply(tensor.LeakyReLU, z)

		rate := 0.0
		if i < len(opt.Dropout) {
			rate = opt.Dropout[i]
		}
		if opt.Training && rate > 0 {
			mask := dropoutMask(a, rate, opt.Rand)
			a = tensor.Hadamard(a, mask)
			cache.masks[i] = mask
		}
		cur = a
	}
	return cur, cache
}

// dropoutMask 生成 Bernoulli(1−rate) 掩码，保留位取 1/(1−rate) 实现 inverted scaling。
func dropoutMask(a *mat.Dense, rate float64, rng *rand.Rand) *mat.Dense {
	r, c := a.Dims()
	keep := 1.0 - rate
	scale := 1.0 / keep
	mask := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if rng.Float64() < keep {
				mask.Set(i, j, scale)
			}
		}
	}
	return mask
}

// Gradients 与网络参数同形的梯度集合。
type Gradients struct {
	Weights []*mat.Dense // len = L
	Biases  []*mat.Dense // len = L
	Gammas  []*mat.Dense // len = L−1
	Betas   []*mat.Dense // len = L−1
}

// All 展平为张量列表，供全局范数裁剪使用。
func (g *Gradients) All() []*mat.Dense {
	out := make([]*mat.Dense, 0, len(g.Weights)*2+len(g.Gammas)*2)
	out = append(out, g.Weights...)
	out = append(out, g.Biases...)
	out = append(out, g.Gammas...)
	out = append(out, g.Betas...)
	return out
}

// Scale 全部梯度乘以 k（按 pair 数取均值时使用）。
func (g *Gradients) Scale(k float64) {
	for _, m := range g.All() {
		if m != nil {
			m.Scale(k, m)
		}
	}
}

// Backward 在 pairwise hinge 目标下执行反向传播。
// outGrad 是外部给定的逐样本 ±1 输出梯度（hinge 的次梯度），输出层视为 logits。
// 自输出层向下：先还原 dropout 缩放，再乘 leaky-ReLU 导数，再走批归一化反向，
// 最后 ∇W = actᵀ·δ、∇b = colsum(δ)，并传播 δ·Wᵀ。
func (n *Network) Backward(cache *Cache, outGrad *mat.Dense) *Gradients {
	layers := n.NumLayers()
	g := &Gradients{
		Weights: make([]*mat.Dense, layers),
		Biases:  make([]*mat.Dense, layers),
		Gammas:  make([]*mat.Dense, layers-1),
		Betas:   make([]*mat.Dense, layers-1),
	}

	delta := outGrad
	for i := layers - 1; i >= 0; i-- {
		if i < layers-1 {
			if cache.masks[i] != nil {
				delta = tensor.Hadamard(delta, cache.masks[i])
			}
			deriv := tensor.Apply(tensor.LeakyReLUDeriv, cache.bnOut[i])
			delta = tensor.Hadamard(delta, deriv)
			if n.Norms[i] != nil {
				var dGamma, dBeta *mat.Dense
				delta, dGamma, dBeta = n.Norms[i].Backward(delta)
				g.Gammas[i] = dGamma
				g.Betas[i] = dBeta
			}
		}

		g.Weights[i] = tensor.MatTMul(cache.inputs[i], delta)
		g.Biases[i] = tensor.ColSum(delta)

		if i > 0 {
			delta = tensor.MatMulT(delta, n.Weights[i])
		}
	}
	return g
}

// LayerNorms 计算每层权重矩阵的 L2 范数与平均绝对值，训练后刷新给观测用。
func (n *Network) LayerNorms() (l2 []float64, avgMag []float64) {
	layers := n.NumLayers()
	l2 = make([]float64, layers)
	avgMag = make([]float64, layers)
	for i, w := range n.Weights {
		r, c := w.Dims()
		var sumSq, sumAbs float64
		for a := 0; a < r; a++ {
			for b := 0; b < c; b++ {
				v := w.At(a, b)
				sumSq += v * v
				sumAbs += math.Abs(v)
			}
		}
		l2[i] = math.Sqrt(sumSq)
		avgMag[i] = sumAbs / float64(r*c)
	}
	return l2, avgMag
}

// GrowInput 把第一层输入宽度扩展到 newIn：只对第一个权重矩阵追加
// He 初始化的新行，其余层不动。特征集合增长时的迁移路径。
func (n *Network) GrowInput(newIn int, rng *rand.Rand) {
	oldIn := n.Arch[0]
	if newIn <= oldIn {
		return
	}
	out := n.Arch[1]
	stddev := math.Sqrt(2.0 / float64(newIn))
	grown := mat.NewDense(newIn, out, nil)
	for i := 0; i < oldIn; i++ {
		for j := 0; j < out; j++ {
			grown.Set(i, j, n.Weights[0].At(i, j))
		}
	}
	for i := oldIn; i < newIn; i++ {
		for j := 0; j < out; j++ {
			grown.Set(i, j, rng.NormFloat64()*stddev)
		}
	}
	n.Weights[0] = grown
	n.Arch[0] = newIn
}
