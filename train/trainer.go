package train

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/rushteam/ranklearn/core"
	"github.com/rushteam/ranklearn/nn"
	"github.com/rushteam/ranklearn/optim"
	"github.com/rushteam/ranklearn/tensor"
)

// 训练策略默认值。
const (
	DefaultMargin       = 1.0
	DefaultMatchDropout = 0.25
	DefaultClipNorm     = 5.0
	MaxHardNegatives    = 10
)

// Config 是训练编排的策略参数（由算法配置校验后填充）。
type Config struct {
	BatchSize        int
	BatchesPerUpdate int
	Margin           float64
	MatchDropout     float64
	MatchFeatures    []int // 被视为“匹配类”的特征列下标
	DropoutRates     []float64
	ClipNorm         float64
}

// Trainer 驱动一次选择事件到若干参数更新的完整循环。
// 单线程、调用即返回；调用方保证同一实例同时只有一次在途调用。
type Trainer struct {
	Net     *nn.Network
	Opt     optim.Optimizer
	History *History
	Stats   *Stats
	Cfg     Config
	Rng     *rand.Rand
	Clock   core.Clock
}

// BuildPairs 由选择事件构造偏好对：被选中项为正例，
// 排名前列（至多 10 个）的其它候选为困难负例。
// 每条 pair 以 match_dropout 概率把“匹配类”特征在正负两侧同时置零，
// 模拟无搜索词场景；该置零决策按 pair 只做一次、两侧共享。
func (t *Trainer) BuildPairs(selected *core.Candidate, ranked []*core.Candidate) []Pair {
	if selected == nil {
		return nil
	}
	pairs := make([]Pair, 0, MaxHardNegatives)
	for _, c := range ranked {
		if c == nil || c.ID == selected.ID {
			continue
		}
		if len(pairs) >= MaxHardNegatives {
			break
		}
		// 入参特征只读：先拷贝再做任何变换
		pos := selected.CloneFeatures()
		neg := c.CloneFeatures()
		if t.Cfg.MatchDropout > 0 && len(t.Cfg.MatchFeatures) > 0 && t.Rng.Float64() < t.Cfg.MatchDropout {
			zeroFeatures(pos, t.Cfg.MatchFeatures)
			zeroFeatures(neg, t.Cfg.MatchFeatures)
		}
		pairs = append(pairs, Pair{
			Positive:   pos,
			Negative:   neg,
			PositiveID: selected.ID,
			NegativeID: c.ID,
		})
	}
	return pairs
}

func zeroFeatures(fs []float64, indices []int) {
	for _, i := range indices {
		if i >= 0 && i < len(fs) {
			fs[i] = 0
		}
	}
}

// Update 执行一轮训练：组装 batch、逐个训练达到填充门槛的 batch、
// 事后把新 pair 追加进历史并截断。返回实际训练的 batch 数。
func (t *Trainer) Update(newPairs []Pair) int {
	if len(newPairs) == 0 {
		return 0
	}
	t.Stats.SamplesProcessed += int64(len(newPairs))

	batches := t.assembleBatches(newPairs)

	trained := 0
	minFill := MinBatchFill(t.Cfg.BatchSize)
	for _, batch := range batches {
		if len(batch) < minFill {
			continue
		}
		t.trainBatch(batch)
		trained++
	}

	// 新 pair 在 batch 组装之后入历史，避免首个 batch 重复计入
	for _, p := range newPairs {
		t.History.Append(p)
	}
	return trained
}

// assembleBatches 组装本轮的候选 batch 序列：
// 第一个 batch 恒为新 pair，不足 batch_size 时用历史中最新条目补齐；
// 其后各 batch 从尚未使用的历史中无放回均匀抽样。
func (t *Trainer) assembleBatches(newPairs []Pair) [][]Pair {
	first := make([]Pair, len(newPairs))
	copy(first, newPairs)

	used := make(map[int]bool)
	if need := t.Cfg.BatchSize - len(first); need > 0 {
		for i := t.History.Len() - 1; i >= 0 && need > 0; i-- {
			first = append(first, t.History.At(i))
			used[i] = true
			need--
		}
	}

	batches := [][]Pair{first}

	pool := make([]int, 0, t.History.Len())
	for i := 0; i < t.History.Len(); i++ {
		if !used[i] {
			pool = append(pool, i)
		}
	}
	t.Rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })

	for b := 1; b < t.Cfg.BatchesPerUpdate && len(pool) > 0; b++ {
		k := t.Cfg.BatchSize
		if k > len(pool) {
			k = len(pool)
		}
		batch := make([]Pair, 0, k)
		for _, idx := range pool[:k] {
			batch = append(batch, t.History.At(idx))
		}
		pool = pool[k:]
		batches = append(batches, batch)
	}
	return batches
}

// trainBatch 对一个 batch 执行一次前向+反向+优化。
// 正负样本交错成 [pos1, neg1, pos2, neg2, …]，让批归一化同时观察两类分布。
func (t *Trainer) trainBatch(pairs []Pair) {
	p := len(pairs)
	width := t.Net.InputSize()

	x := mat.NewDense(2*p, width, nil)
	for k, pair := range pairs {
		setPadded(x, 2*k, pair.Positive, width)
		setPadded(x, 2*k+1, pair.Negative, width)
	}

	forwardStart := t.Clock.Now()
	out, cache := t.Net.Forward(x, nn.ForwardOptions{
		Training: true,
		Dropout:  t.Cfg.DropoutRates,
		Output:   nn.OutputLogits,
		Rand:     t.Rng,
	})
	forwardDur := t.Clock.Now().Sub(forwardStart)

	// pairwise hinge：loss_k = max(0, margin − (logit_pos − logit_neg))
	outGrad := mat.NewDense(2*p, 1, nil)
	var lossSum float64
	acc := AccuracyCount{Total: p}
	for k := 0; k < p; k++ {
		gap := out.At(2*k, 0) - out.At(2*k+1, 0)
		if gap > 0 {
			acc.Correct++
		}
		if gap >= t.Cfg.Margin {
			acc.MarginCorrect++
		}
		loss := t.Cfg.Margin - gap
		if loss > 0 {
			lossSum += loss
			// hinge 的次梯度：违反 margin 时正例 −1、负例 +1，否则 0
			outGrad.Set(2*k, 0, -1)
			outGrad.Set(2*k+1, 0, 1)
		}
	}

	backwardStart := t.Clock.Now()
	grads := t.Net.Backward(cache, outGrad)
	backwardDur := t.Clock.Now().Sub(backwardStart)

	grads.Scale(1.0 / float64(p))
	clip := t.Cfg.ClipNorm
	if clip <= 0 {
		clip = DefaultClipNorm
	}
	tensor.ClipGlobalNorm(grads.All(), clip)

	updateStart := t.Clock.Now()
	t.Opt.Apply(t.Net, grads)
	updateDur := t.Clock.Now().Sub(updateStart)

	t.Stats.BatchesTrained++
	t.Stats.Loss.Push(lossSum / float64(p))
	t.Stats.Accuracy.Push(acc)
	t.Stats.Timings.Push(BatchTiming{Forward: forwardDur, Backward: backwardDur, Update: updateDur})
	t.Stats.WeightL2, t.Stats.WeightAvgMag = t.Net.LayerNorms()
}

// setPadded 把特征向量写入第 row 行，缺失维度默认 0，超长截断。
func setPadded(x *mat.Dense, row int, fs []float64, width int) {
	n := width
	if len(fs) < n {
		n = len(fs)
	}
	for j := 0; j < n; j++ {
		x.Set(row, j, fs[j])
	}
}

// HingeLoss 计算单条 pair 的 hinge 损失（测试与调试用）。
func HingeLoss(logitPos, logitNeg, margin float64) float64 {
	loss := margin - (logitPos - logitNeg)
	if loss < 0 {
		return 0
	}
	return loss
}
