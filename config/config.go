// Package config 负责引擎配置的加载与装配：
// 从 YAML/JSON 文件解析出存储后端与若干打分引擎，装配成可用的调度器集合。
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config 是顶层配置结构（支持 YAML/JSON）。
type Config struct {
	Store   StoreConfig    `yaml:"store" json:"store"`
	Engines []EngineConfig `yaml:"engines" json:"engines"`
}

// StoreConfig 选择权重存储后端。
type StoreConfig struct {
	Type string `yaml:"type" json:"type"` // memory / redis
	Addr string `yaml:"addr" json:"addr"` // redis 地址
	DB   int    `yaml:"db" json:"db"`     // redis 库号
}

// EngineConfig 是单个打分引擎的配置。
type EngineConfig struct {
	Name      string         `yaml:"name" json:"name"`           // 引擎实例名
	Algorithm string         `yaml:"algorithm" json:"algorithm"` // neural / linear / noop
	TrainIf   string         `yaml:"train_if" json:"train_if"`   // 训练门控表达式，空为恒真
	Config    map[string]any `yaml:"config" json:"config"`       // 算法特定配置
}

// LoadFromYAML 从 YAML 文件加载配置。
func LoadFromYAML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return &cfg, nil
}

// LoadFromJSON 从 JSON 文件加载配置。
func LoadFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	return &cfg, nil
}
