package train

import "time"

// 滚动统计的容量上限。
const (
	LossHistoryCap     = 1000
	AccuracyHistoryCap = 1000
	TimingHistoryCap   = 10
)

// Ring 是固定容量的环形缓冲：写满后覆盖最旧条目。
type Ring[T any] struct {
	data  []T
	start int
	size  int
}

// NewRing 创建容量为 capacity 的环形缓冲。
func NewRing[T any](capacity int) *Ring[T] {
	return &Ring[T]{data: make([]T, capacity)}
}

// Push 追加一个值，必要时覆盖最旧值。
func (r *Ring[T]) Push(v T) {
	if r.size < len(r.data) {
		r.data[(r.start+r.size)%len(r.data)] = v
		r.size++
		return
	}
	r.data[r.start] = v
	r.start = (r.start + 1) % len(r.data)
}

// Len 返回当前条数，恒 ≤ 容量。
func (r *Ring[T]) Len() int { return r.size }

// Values 按从旧到新导出所有值。
func (r *Ring[T]) Values() []T {
	out := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.data[(r.start+i)%len(r.data)]
	}
	return out
}

// AccuracyCount 是一个 batch 的排序正确性计数。
type AccuracyCount struct {
	Correct       int `json:"correct"`        // logit_pos > logit_neg
	MarginCorrect int `json:"margin_correct"` // 差值 ≥ margin
	Total         int `json:"total"`
}

// BatchTiming 是一个 batch 的三段耗时。
type BatchTiming struct {
	Forward  time.Duration
	Backward time.Duration
	Update   time.Duration
}

// Stats 是训练过程的滚动统计：有界环形缓冲 + 单调计数器 + 派生权重指标。
// 每训练完一个 batch 变更一次。
type Stats struct {
	Loss     *Ring[float64]
	Accuracy *Ring[AccuracyCount]
	Timings  *Ring[BatchTiming]

	SamplesProcessed int64
	BatchesTrained   int64

	// 每层权重的 L2 范数与平均绝对值，参数更新后刷新
	WeightL2     []float64
	WeightAvgMag []float64
}

// NewStats 创建空统计。
func NewStats() *Stats {
	return &Stats{
		Loss:     NewRing[float64](LossHistoryCap),
		Accuracy: NewRing[AccuracyCount](AccuracyHistoryCap),
		Timings:  NewRing[BatchTiming](TimingHistoryCap),
	}
}

// AverageLoss 返回损失窗口均值，窗口为空时返回 0。
func (s *Stats) AverageLoss() float64 {
	vs := s.Loss.Values()
	if len(vs) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

// AccuracyRate 返回窗口内的排序正确率与 margin 正确率。
func (s *Stats) AccuracyRate() (correct, marginCorrect float64) {
	var c, mc, total int
	for _, a := range s.Accuracy.Values() {
		c += a.Correct
		mc += a.MarginCorrect
		total += a.Total
	}
	if total == 0 {
		return 0, 0
	}
	return float64(c) / float64(total), float64(mc) / float64(total)
}

// ClearLoss 清空损失窗口（损失函数版本迁移后旧损失量级不可比）。
func (s *Stats) ClearLoss() {
	s.Loss = NewRing[float64](LossHistoryCap)
}
