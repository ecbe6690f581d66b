package algo

import (
	"fmt"
	"strings"
)

// DebugReport 渲染神经算法的人读状态报告：
// 架构、训练进度、损失/正确率窗口、每层权重规模。
// 输出面向排障终端，不保证格式稳定。
func DebugReport(a *Neural) string {
	var b strings.Builder

	b.WriteString("=== neural scoring state ===\n")
	if a == nil || a.cfg == nil {
		b.WriteString("not configured\n")
		return b.String()
	}
	fmt.Fprintf(&b, "architecture: %v\n", a.cfg.Architecture)
	fmt.Fprintf(&b, "optimizer: %s lr=%g decay=%g warmup=%d\n",
		a.cfg.OptimizerType, a.cfg.Optimizer.LearningRate,
		a.cfg.Optimizer.WeightDecay, a.cfg.Optimizer.WarmupSteps)

	if !a.loaded {
		b.WriteString("weights: not loaded\n")
		return b.String()
	}

	s := a.stats
	fmt.Fprintf(&b, "samples processed: %d\n", s.SamplesProcessed)
	fmt.Fprintf(&b, "batches trained: %d\n", s.BatchesTrained)
	fmt.Fprintf(&b, "history: %d/%d pairs\n", a.history.Len(), a.history.Cap())
	fmt.Fprintf(&b, "avg loss (window %d): %.6f\n", s.Loss.Len(), s.AverageLoss())

	correct, marginCorrect := s.AccuracyRate()
	fmt.Fprintf(&b, "pairwise accuracy: %.1f%% (margin %.1f%%)\n",
		correct*100, marginCorrect*100)

	for i := range s.WeightL2 {
		fmt.Fprintf(&b, "layer %d: l2=%.4f avg|w|=%.6f\n", i, s.WeightL2[i], s.WeightAvgMag[i])
	}

	if timings := s.Timings.Values(); len(timings) > 0 {
		last := timings[len(timings)-1]
		fmt.Fprintf(&b, "last batch: forward=%s backward=%s update=%s\n",
			last.Forward, last.Backward, last.Update)
	}
	return b.String()
}
