// Package train 实现训练编排：从一次选择事件构造偏好对、
// 依滑动窗口历史组装 mini-batch、驱动前向+反向+优化循环并累积滚动统计。
package train

import "math"

// Pair 是一条观察到的偏好实例：被选中项（正例）优于某个高排位竞争项（负例）。
// 构造后不可变。
type Pair struct {
	Positive   []float64 `json:"positive"`
	Negative   []float64 `json:"negative"`
	PositiveID string    `json:"positive_id"`
	NegativeID string    `json:"negative_id"`
}

// History 是有界的 FIFO 训练对窗口：尾部插入，满时从头部淘汰。
type History struct {
	pairs []Pair
	cap   int
}

// NewHistory 创建容量为 size 的历史窗口。
func NewHistory(size int) *History {
	return &History{cap: size}
}

// Append 追加一条训练对；超出容量时从头部截断。
func (h *History) Append(p Pair) {
	h.pairs = append(h.pairs, p)
	if h.cap > 0 && len(h.pairs) > h.cap {
		h.pairs = h.pairs[len(h.pairs)-h.cap:]
	}
}

// Len 返回当前条数，恒 ≤ 容量。
func (h *History) Len() int { return len(h.pairs) }

// Cap 返回容量。
func (h *History) Cap() int { return h.cap }

// At 返回第 i 条（0 为最旧）。
func (h *History) At(i int) Pair { return h.pairs[i] }

// Snapshot 导出全部训练对（持久化用），拷贝切片头避免外部截断影响内部。
func (h *History) Snapshot() []Pair {
	out := make([]Pair, len(h.pairs))
	copy(out, h.pairs)
	return out
}

// Restore 从持久化文档恢复历史，超出容量的最旧条目被丢弃。
func (h *History) Restore(pairs []Pair) {
	h.pairs = h.pairs[:0]
	for _, p := range pairs {
		h.Append(p)
	}
}

// Clear 清空历史（损失函数版本迁移时旧样本不可比，直接丢弃）。
func (h *History) Clear() { h.pairs = nil }

// PadFeatures 把每条训练对的特征向量补零到 width（特征集合增长迁移用）。
func (h *History) PadFeatures(width int) {
	for i := range h.pairs {
		h.pairs[i].Positive = padTo(h.pairs[i].Positive, width)
		h.pairs[i].Negative = padTo(h.pairs[i].Negative, width)
	}
}

func padTo(fs []float64, width int) []float64 {
	if len(fs) >= width {
		return fs
	}
	out := make([]float64, width)
	copy(out, fs)
	return out
}

// MinBatchFill 返回 batch 的最小填充门槛 ceil(0.5·batchSize)：
// 低于该门槛的候选 batch 直接弃用，不计入 batches_trained。
func MinBatchFill(batchSize int) int {
	return int(math.Ceil(0.5 * float64(batchSize)))
}
