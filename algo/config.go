package algo

import (
	"fmt"

	"github.com/rushteam/ranklearn/core"
	"github.com/rushteam/ranklearn/optim"
	"github.com/rushteam/ranklearn/pkg/conv"
	"github.com/rushteam/ranklearn/train"
)

// 训练编排的默认值（可配置覆盖）。
const (
	DefaultBatchSize        = 16
	DefaultBatchesPerUpdate = 4
	DefaultHistorySize      = 2000
	DefaultLearningRate     = 0.001

	// DefaultWarmupStartFactor 是 warmup 的默认起始学习率系数：
	// 开启 warmup 而未显式配置时从 10% 学习率爬坡，而不是从 0 附近起步。
	DefaultWarmupStartFactor = 0.1
)

// neuralConfig 是神经算法的完整配置，从 map[string]any 校验解析得到。
// architecture 与 optimizer 必填，其余字段有默认值。
type neuralConfig struct {
	Architecture  []int
	OptimizerType string
	Optimizer     optim.Config

	BatchSize        int
	BatchesPerUpdate int
	HistorySize      int
	Margin           float64
	MatchDropout     float64
	MatchFeatures    []int
	DropoutRates     []float64
	ClipNorm         float64
}

func invalidConfig(format string, args ...any) error {
	return core.NewDomainError(core.ModuleAlgo, core.ErrorCodeInvalidConfig,
		fmt.Sprintf("algo: "+format, args...))
}

// parseNeuralConfig 校验并解析配置。
// 任何结构性错误（缺架构、未知优化器、dropout 长度不符）都立即报错，
// 带错误配置上线比拒绝启动的代价高得多。
func parseNeuralConfig(config map[string]any) (*neuralConfig, error) {
	raw, ok := config["architecture"]
	if !ok {
		return nil, invalidConfig("architecture is required")
	}
	arch, ok := conv.SliceToInt(raw)
	if !ok || len(arch) < 2 {
		return nil, invalidConfig("architecture must be a list of at least 2 layer widths, got %v", raw)
	}
	for i, w := range arch {
		if w <= 0 {
			return nil, invalidConfig("architecture layer %d width must be positive, got %d", i, w)
		}
	}
	if arch[len(arch)-1] != 1 {
		return nil, invalidConfig("architecture output width must be 1, got %d", arch[len(arch)-1])
	}

	optType, ok := conv.ToString(config["optimizer"])
	if !ok || optType == "" {
		return nil, invalidConfig("optimizer is required")
	}
	if optType != optim.TypeSGD && optType != optim.TypeAdamW {
		return nil, invalidConfig("unknown optimizer %q", optType)
	}

	cfg := &neuralConfig{
		Architecture:  arch,
		OptimizerType: optType,
		Optimizer: optim.Config{
			LearningRate:      conv.ConfigGetFloat64(config, "learning_rate", DefaultLearningRate),
			WeightDecay:       conv.ConfigGetFloat64(config, "weight_decay", 0),
			WarmupSteps:       conv.ConfigGetInt(config, "warmup_steps", 0),
			WarmupStartFactor: conv.ConfigGetFloat64(config, "warmup_start_factor", DefaultWarmupStartFactor),
			Beta1:             configFloat64Alias(config, 0, "adam_beta1", "beta1"),
			Beta2:             configFloat64Alias(config, 0, "adam_beta2", "beta2"),
			Epsilon:           configFloat64Alias(config, 0, "adam_epsilon", "epsilon"),
		},
		BatchSize:        conv.ConfigGetInt(config, "batch_size", DefaultBatchSize),
		BatchesPerUpdate: conv.ConfigGetInt(config, "batches_per_update", DefaultBatchesPerUpdate),
		HistorySize:      conv.ConfigGetInt(config, "history_size", DefaultHistorySize),
		Margin:           conv.ConfigGetFloat64(config, "margin", train.DefaultMargin),
		MatchDropout:     conv.ConfigGetFloat64(config, "match_dropout", train.DefaultMatchDropout),
		ClipNorm:         conv.ConfigGetFloat64(config, "clip_norm", train.DefaultClipNorm),
	}

	if cfg.Optimizer.LearningRate <= 0 {
		return nil, invalidConfig("learning_rate must be positive, got %v", cfg.Optimizer.LearningRate)
	}
	if cfg.BatchSize < 1 {
		return nil, invalidConfig("batch_size must be at least 1, got %d", cfg.BatchSize)
	}
	if cfg.BatchesPerUpdate < 1 {
		return nil, invalidConfig("batches_per_update must be at least 1, got %d", cfg.BatchesPerUpdate)
	}
	if cfg.HistorySize < cfg.BatchSize {
		return nil, invalidConfig("history_size %d must not be smaller than batch_size %d",
			cfg.HistorySize, cfg.BatchSize)
	}

	if raw, key, ok := configAlias(config, "dropout_rates", "dropout"); ok {
		rates, ok := conv.SliceToFloat64(raw)
		if !ok {
			return nil, invalidConfig("%s must be a list of rates, got %v", key, raw)
		}
		hidden := len(arch) - 2
		if len(rates) != hidden {
			return nil, invalidConfig("%s has %d rates, architecture has %d hidden layers",
				key, len(rates), hidden)
		}
		for i, r := range rates {
			if r < 0 || r >= 1 {
				return nil, invalidConfig("%s[%d] must be in [0,1), got %v", key, i, r)
			}
		}
		cfg.DropoutRates = rates
	}

	if raw, ok := config["match_features"]; ok {
		idx, ok := conv.SliceToInt(raw)
		if !ok {
			return nil, invalidConfig("match_features must be a list of feature indices, got %v", raw)
		}
		for _, i := range idx {
			if i < 0 || i >= arch[0] {
				return nil, invalidConfig("match_features index %d out of range [0,%d)", i, arch[0])
			}
		}
		cfg.MatchFeatures = idx
	}

	if raw, key, ok := configAlias(config, "layer_decay_multipliers", "layer_decay"); ok {
		mults, ok := conv.SliceToFloat64(raw)
		if !ok {
			return nil, invalidConfig("%s must be a list of multipliers, got %v", key, raw)
		}
		cfg.Optimizer.LayerDecayMultipliers = mults
	}

	if cfg.MatchDropout < 0 || cfg.MatchDropout > 1 {
		return nil, invalidConfig("match_dropout must be in [0,1], got %v", cfg.MatchDropout)
	}
	if cfg.Margin <= 0 {
		return nil, invalidConfig("margin must be positive, got %v", cfg.Margin)
	}

	return cfg, nil
}

// configAlias 按优先级取第一个存在的 key，返回值与命中的 key 名（报错提示用）。
func configAlias(m map[string]any, keys ...string) (any, string, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v, k, true
		}
	}
	return nil, "", false
}

// configFloat64Alias 按优先级取第一个存在且可转换的 float64。
func configFloat64Alias(m map[string]any, defaultVal float64, keys ...string) float64 {
	for _, k := range keys {
		if _, ok := m[k]; ok {
			return conv.ConfigGetFloat64(m, k, defaultVal)
		}
	}
	return defaultVal
}

// trainConfig 导出训练编排参数。
func (c *neuralConfig) trainConfig() train.Config {
	return train.Config{
		BatchSize:        c.BatchSize,
		BatchesPerUpdate: c.BatchesPerUpdate,
		Margin:           c.Margin,
		MatchDropout:     c.MatchDropout,
		MatchFeatures:    c.MatchFeatures,
		DropoutRates:     c.DropoutRates,
		ClipNorm:         c.ClipNorm,
	}
}

// featureWidth 返回配置声明的输入特征维度。
func (c *neuralConfig) featureWidth() int { return c.Architecture[0] }
