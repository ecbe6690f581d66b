package dispatch

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// ShadowResult 是一个模型对同一候选集的打分结果。
type ShadowResult struct {
	Algorithm string
	Scores    []float64
	Err       error
}

// Shadow 把同一份候选特征同时交给主模型和若干影子模型打分，
// 用于灰度对比：影子模型的分数只观测、不参与线上排序。
// 影子失败不影响主结果。
type Shadow struct {
	Primary       *Dispatcher
	Shadows       []*Dispatcher
	Timeout       time.Duration // 每个影子的打分超时（0 表示不限）
	MaxConcurrent int           // 影子并发上限（0 表示无限制）
}

// ScoreAll 返回主模型分数，影子结果按 Shadows 顺序排列。
// 主模型失败时整体失败；影子的错误收敛在各自的 ShadowResult 里。
func (s *Shadow) ScoreAll(ctx context.Context, features [][]float64) ([]float64, []ShadowResult, error) {
	primary, err := scoreBatch(s.Primary, features)
	if err != nil {
		return nil, nil, err
	}

	results := make([]ShadowResult, len(s.Shadows))
	eg, ctx := errgroup.WithContext(ctx)

	sem := make(chan struct{}, s.MaxConcurrent)
	if s.MaxConcurrent <= 0 {
		close(sem) // 无限制时直接关闭，避免阻塞
	}

	for i, sd := range s.Shadows {
		i, sd := i, sd
		eg.Go(func() error {
			if s.MaxConcurrent > 0 {
				sem <- struct{}{}
				defer func() { <-sem }()
			}

			shadowCtx := ctx
			if s.Timeout > 0 {
				var cancel context.CancelFunc
				shadowCtx, cancel = context.WithTimeout(ctx, s.Timeout)
				defer cancel()
			}

			results[i].Algorithm = sd.Algorithm()
			select {
			case <-shadowCtx.Done():
				results[i].Err = shadowCtx.Err()
			default:
				results[i].Scores, results[i].Err = scoreBatch(sd, features)
			}
			// 影子失败只记录，不中断其他影子
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}
	return primary, results, nil
}

func scoreBatch(d *Dispatcher, features [][]float64) ([]float64, error) {
	out := make([]float64, len(features))
	for i, fs := range features {
		score, err := d.Score(fs)
		if err != nil {
			return nil, err
		}
		out[i] = score
	}
	return out, nil
}
