package tensor

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// GlobalNorm 计算一组梯度张量整体的 L2 范数。
func GlobalNorm(ms []*mat.Dense) float64 {
	sum := 0.0
	for _, m := range ms {
		if m == nil {
			continue
		}
		data := m.RawMatrix().Data
		sum += floats.Dot(data, data)
	}
	return math.Sqrt(sum)
}

// ClipGlobalNorm 做全局范数梯度裁剪：当整体 L2 范数超过 maxNorm 时，
// 所有张量按同一比例缩放；未超过则保持原样。返回裁剪前的范数。
func ClipGlobalNorm(ms []*mat.Dense, maxNorm float64) float64 {
	norm := GlobalNorm(ms)
	if norm <= maxNorm || norm == 0 {
		return norm
	}
	scale := maxNorm / norm
	for _, m := range ms {
		if m == nil {
			continue
		}
		m.Scale(scale, m)
	}
	return norm
}
