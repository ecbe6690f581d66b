// Package tensor 是稠密二维矩阵的数学内核，底层复用 gonum/mat，
// 在其之上补齐本引擎需要的初始化、广播、按列统计与梯度裁剪原语。
//
// 约定：所有矩阵均为行主序 *mat.Dense；偏置/批归一化参数统一用 1×n 行向量表达。
package tensor

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// New 创建 r×c 零矩阵。
func New(r, c int) *mat.Dense {
	return mat.NewDense(r, c, nil)
}

// FromRow 把一条特征向量包装成 1×n 矩阵（拷贝数据）。
func FromRow(row []float64) *mat.Dense {
	data := make([]float64, len(row))
	copy(data, row)
	return mat.NewDense(1, len(row), data)
}

// FromRows 把若干等长向量拼成 len(rows)×n 矩阵（拷贝数据）。
func FromRows(rows [][]float64) *mat.Dense {
	r := len(rows)
	c := len(rows[0])
	m := mat.NewDense(r, c, nil)
	for i, row := range rows {
		m.SetRow(i, row)
	}
	return m
}

// FromSlices 由嵌套切片构建矩阵，持久化文档反序列化时使用。
func FromSlices(rows [][]float64) *mat.Dense {
	return FromRows(rows)
}

// ToSlices 导出为嵌套切片，持久化文档序列化时使用。
func ToSlices(m *mat.Dense) [][]float64 {
	r, c := m.Dims()
	out := make([][]float64, r)
	for i := 0; i < r; i++ {
		row := make([]float64, c)
		mat.Row(row, i, m)
		out[i] = row
	}
	return out
}

// RandHe 按 He 初始化生成 r×c 矩阵：N(0,1)·sqrt(2/fan_in)，fan_in 取行数。
// 随机源显式注入，保证可复现。
func RandHe(r, c int, rng *rand.Rand) *mat.Dense {
	stddev := math.Sqrt(2.0 / float64(r))
	data := make([]float64, r*c)
	for i := range data {
		data[i] = rng.NormFloat64() * stddev
	}
	return mat.NewDense(r, c, data)
}

// Clone 深拷贝。
func Clone(m *mat.Dense) *mat.Dense {
	return mat.DenseCopyOf(m)
}

// MatMul 返回 a·b。
func MatMul(a, b *mat.Dense) *mat.Dense {
	ar, _ := a.Dims()
	_, bc := b.Dims()
	out := mat.NewDense(ar, bc, nil)
	out.Mul(a, b)
	return out
}

// MatMulT 返回 a·bᵀ，反向传播中 δ·Wᵀ 的常用形态。
func MatMulT(a, b *mat.Dense) *mat.Dense {
	ar, _ := a.Dims()
	br, _ := b.Dims()
	out := mat.NewDense(ar, br, nil)
	out.Mul(a, b.T())
	return out
}

// MatTMul 返回 aᵀ·b，权重梯度 actᵀ·δ 的常用形态。
func MatTMul(a, b *mat.Dense) *mat.Dense {
	_, ac := a.Dims()
	_, bc := b.Dims()
	out := mat.NewDense(ac, bc, nil)
	out.Mul(a.T(), b)
	return out
}

// Transpose 返回 aᵀ 的稠密拷贝。
func Transpose(a *mat.Dense) *mat.Dense {
	r, c := a.Dims()
	out := mat.NewDense(c, r, nil)
	out.Copy(a.T())
	return out
}

// Add 返回 a+b。
func Add(a, b *mat.Dense) *mat.Dense {
	r, c := a.Dims()
	out := mat.NewDense(r, c, nil)
	out.Add(a, b)
	return out
}

// Sub 返回 a−b。
func Sub(a, b *mat.Dense) *mat.Dense {
	r, c := a.Dims()
	out := mat.NewDense(r, c, nil)
	out.Sub(a, b)
	return out
}

// Hadamard 返回逐元素乘积 a⊙b。
func Hadamard(a, b *mat.Dense) *mat.Dense {
	r, c := a.Dims()
	out := mat.NewDense(r, c, nil)
	out.MulElem(a, b)
	return out
}

// Scale 返回 k·a。
func Scale(k float64, a *mat.Dense) *mat.Dense {
	r, c := a.Dims()
	out := mat.NewDense(r, c, nil)
	out.Scale(k, a)
	return out
}

// ScaleInPlace 原地执行 a ← k·a。
func ScaleInPlace(k float64, a *mat.Dense) {
	a.Scale(k, a)
}

// Apply 返回对每个元素应用 fn 后的新矩阵。
func Apply(fn func(v float64) float64, a *mat.Dense) *mat.Dense {
	r, c := a.Dims()
	out := mat.NewDense(r, c, nil)
	out.Apply(func(_, _ int, v float64) float64 { return fn(v) }, a)
	return out
}

// AddBias 原地把 1×c 的 bias 广播加到 m 的每一行。
func AddBias(m, bias *mat.Dense) {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			m.Set(i, j, m.At(i, j)+bias.At(0, j))
		}
	}
}

// BroadcastRow 把 1×c 行向量复制成 r×c 矩阵。
func BroadcastRow(row *mat.Dense, r int) *mat.Dense {
	_, c := row.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, row.At(0, j))
		}
	}
	return out
}

// ColSum 返回按列求和的 1×c 行向量。
func ColSum(m *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(1, c, nil)
	for j := 0; j < c; j++ {
		sum := 0.0
		for i := 0; i < r; i++ {
			sum += m.At(i, j)
		}
		out.Set(0, j, sum)
	}
	return out
}

// ColMean 返回按列均值的 1×c 行向量。
func ColMean(m *mat.Dense) *mat.Dense {
	r, _ := m.Dims()
	out := ColSum(m)
	out.Scale(1.0/float64(r), out)
	return out
}

// ColVariance 返回按列的总体方差（除以 n，不做无偏修正），mean 为 1×c 均值行向量。
func ColVariance(m, mean *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(1, c, nil)
	for j := 0; j < c; j++ {
		mu := mean.At(0, j)
		sum := 0.0
		for i := 0; i < r; i++ {
			d := m.At(i, j) - mu
			sum += d * d
		}
		out.Set(0, j, sum/float64(r))
	}
	return out
}
