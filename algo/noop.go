package algo

import (
	"context"

	"github.com/rushteam/ranklearn/core"
)

// NameNoop 是直通算法的注册名。
const NameNoop = "noop"

func init() {
	Register(NameNoop, func(deps Deps) Algorithm { return Noop{} })
}

// Noop 对所有候选返回同一中位分值，不学习。
// 用于排障：排除模型影响后观察链路其余部分的行为。
type Noop struct{}

func (Noop) Name() string                        { return NameNoop }
func (Noop) Init(map[string]any) error           { return nil }
func (Noop) LoadWeights(context.Context) error   { return nil }
func (Noop) CalculateScore([]float64) (float64, error) { return 50, nil }

func (Noop) UpdateWeights(context.Context, *core.Candidate, []*core.Candidate, core.Telemetry) error {
	return nil
}

var _ Algorithm = Noop{}
