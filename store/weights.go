package store

import (
	"context"
	"fmt"

	"github.com/rushteam/ranklearn/core"
)

// weightKeyPrefix 是权重文档在底层 KV 存储中的 key 前缀。
const weightKeyPrefix = "ranklearn:weights:"

// WeightKey 返回某算法权重文档的存储 key。
func WeightKey(algorithm string) string {
	return weightKeyPrefix + algorithm
}

// Weights 基于任意 core.Store 实现 core.WeightStore：
// 文档按字节透明存取，key 按算法名派生。
type Weights struct {
	backend core.Store
}

// NewWeights 用给定后端创建权重存储。
func NewWeights(backend core.Store) *Weights {
	return &Weights{backend: backend}
}

func (w *Weights) GetWeights(ctx context.Context, algorithm string) ([]byte, error) {
	return w.backend.Get(ctx, WeightKey(algorithm))
}

func (w *Weights) SaveWeights(ctx context.Context, algorithm string, doc []byte, tel core.Telemetry) error {
	if tel == nil {
		tel = core.NopTelemetry{}
	}
	var err error
	tel.Measure("save_weights", func() {
		err = w.backend.Set(ctx, WeightKey(algorithm), doc)
	})
	if err != nil {
		return fmt.Errorf("store: save weights for %s via %s: %w", algorithm, w.backend.Name(), err)
	}
	tel.AddMetadata("save_weights", map[string]any{
		"algorithm": algorithm,
		"bytes":     len(doc),
		"backend":   w.backend.Name(),
	})
	return nil
}

var _ core.WeightStore = (*Weights)(nil)
