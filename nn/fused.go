package nn

import (
	"math"

	"github.com/rushteam/ranklearn/tensor"
)

// ScoreScale 把 sigmoid 输出映射到 [0,100] 分值区间。
const ScoreScale = 100.0

// Fused 是推理期的参数融合缓存：批归一化折叠进转置后的权重/偏置，
// 打分退化为纯点积内循环。它只是 Network 的派生视图，
// 任何参数变更后必须重建，绝不能反向作为事实来源。
type Fused struct {
	weights [][]float64 // 每层转置后的扁平权重，[out][in] 行主序
	biases  [][]float64 // 每层融合后的偏置
	inDims  []int
	outDims []int
}

// BuildFused 从当前网络参数构建融合缓存。
// 隐藏层：scale = γ/sqrt(running_var+ε)，
// 融合偏置 = scale·(b−running_mean)+β，融合权重 = W·scale（按输出列缩放）。
// 输出层只做转置展平，不融合。
func BuildFused(n *Network) *Fused {
	layers := n.NumLayers()
	f := &Fused{
		weights: make([][]float64, layers),
		biases:  make([][]float64, layers),
		inDims:  make([]int, layers),
		outDims: make([]int, layers),
	}

	for i := 0; i < layers; i++ {
		in, out := n.Weights[i].Dims()
		f.inDims[i] = in
		f.outDims[i] = out

		w := make([]float64, out*in)
		b := make([]float64, out)

		var bn *BatchNorm
		if i < layers-1 && n.Norms[i] != nil && n.Norms[i].RunningMean != nil && n.Norms[i].RunningVar != nil {
			bn = n.Norms[i]
		}

		for j := 0; j < out; j++ {
			scale := 1.0
			if bn != nil {
				scale = bn.Gamma.At(0, j) / math.Sqrt(bn.RunningVar.At(0, j)+BatchNormEps)
				b[j] = scale*(n.Biases[i].At(0, j)-bn.RunningMean.At(0, j)) + bn.Beta.At(0, j)
			} else {
				b[j] = n.Biases[i].At(0, j)
			}
			for k := 0; k < in; k++ {
				w[j*in+k] = n.Weights[i].At(k, j) * scale
			}
		}
		f.weights[i] = w
		f.biases[i] = b
	}
	return f
}

// Score 对单条特征向量打分，返回 [0,100]。
// 隐藏层内联 leaky-ReLU，输出层内联饱和 sigmoid。
// 特征向量短于输入宽度时缺失维度按 0 处理。
func (f *Fused) Score(features []float64) float64 {
	cur := features
	for i := range f.weights {
		in, out := f.inDims[i], f.outDims[i]
		n := in
		if len(cur) < n {
			n = len(cur)
		}
		next := make([]float64, out)
		for j := 0; j < out; j++ {
			sum := f.biases[i][j]
			row := f.weights[i][j*in : (j+1)*in]
			for k := 0; k < n; k++ {
				sum += row[k] * cur[k]
			}
			if i < len(f.weights)-1 {
				next[j] = tensor.LeakyReLU(sum)
			} else {
				next[j] = tensor.Sigmoid(sum)
			}
		}
		cur = next
	}
	return cur[0] * ScoreScale
}
