// Package algo 提供可插拔的打分算法：接口定义、注册表，
// 以及神经网络/线性加权/直通三种内置实现。
package algo

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/rushteam/ranklearn/core"
)

// Algorithm 是打分算法的统一接口。
// 生命周期：构建 → Init（配置校验）→ LoadWeights（状态恢复）→ 打分/训练。
// 实现不要求并发安全，串行化由上层调度负责。
type Algorithm interface {
	Name() string

	// Init 校验并应用配置。配置无效时立即报错（fail-fast），
	// 绝不带猜测出来的默认架构继续运行。
	Init(config map[string]any) error

	// LoadWeights 从存储恢复模型状态；找不到已保存状态时落回出厂默认。
	LoadWeights(ctx context.Context) error

	// CalculateScore 对单条特征向量打分，返回 [0,100]。
	CalculateScore(features []float64) (float64, error)

	// UpdateWeights 消费一次选择事件：构造偏好对、训练、持久化。
	UpdateWeights(ctx context.Context, selected *core.Candidate, ranked []*core.Candidate, tel core.Telemetry) error
}

// Deps 是算法实现的运行期协作方集合，全部可注入。
// Rng 为 nil 时实现自行选择种子；Notifier/Clock 为 nil 时使用默认实现。
type Deps struct {
	Weights  core.WeightStore
	Notifier core.Notifier
	Clock    core.Clock
	Rng      *rand.Rand
}

func (d Deps) notifier() core.Notifier {
	if d.Notifier == nil {
		return core.LogNotifier{}
	}
	return d.Notifier
}

func (d Deps) clock() core.Clock {
	if d.Clock == nil {
		return core.SystemClock{}
	}
	return d.Clock
}

// Builder 根据依赖构建一个算法实例。
// 各实现在 init 中调用 Register(name, builder) 即可被配置驱动。
type Builder func(deps Deps) Algorithm

var (
	builders   = make(map[string]Builder)
	buildersMu sync.RWMutex
)

// Register 注册一种算法的构建逻辑。
func Register(name string, b Builder) {
	if name == "" || b == nil {
		return
	}
	buildersMu.Lock()
	defer buildersMu.Unlock()
	builders[name] = b
}

// SupportedTypes 返回当前已注册的算法名列表（排序），用于错误提示与校验。
func SupportedTypes() []string {
	buildersMu.RLock()
	defer buildersMu.RUnlock()
	types := make([]string, 0, len(builders))
	for t := range builders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// New 按名称构建算法实例。未注册的名称返回配置错误。
func New(name string, deps Deps) (Algorithm, error) {
	buildersMu.RLock()
	b, ok := builders[name]
	buildersMu.RUnlock()
	if !ok {
		return nil, core.NewDomainError(core.ModuleAlgo, core.ErrorCodeInvalidConfig,
			fmt.Sprintf("algo: unknown algorithm %q (supported: %v)", name, SupportedTypes()))
	}
	return b(deps), nil
}
