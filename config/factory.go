package config

import (
	"fmt"

	"github.com/rushteam/ranklearn/algo"
	"github.com/rushteam/ranklearn/core"
	"github.com/rushteam/ranklearn/dispatch"
	"github.com/rushteam/ranklearn/store"
)

// Engines 是装配完成的引擎集合，按实例名索引。
type Engines struct {
	backend     core.Store
	dispatchers map[string]*dispatch.Dispatcher
}

// Get 按名称取引擎。
func (e *Engines) Get(name string) (*dispatch.Dispatcher, bool) {
	d, ok := e.dispatchers[name]
	return d, ok
}

// Names 返回全部引擎名。
func (e *Engines) Names() []string {
	names := make([]string, 0, len(e.dispatchers))
	for n := range e.dispatchers {
		names = append(names, n)
	}
	return names
}

// Close 释放底层存储连接。
func (e *Engines) Close() error {
	if e.backend != nil {
		return e.backend.Close()
	}
	return nil
}

// Build 按配置装配全部引擎：构建存储后端、逐个实例化算法并校验配置。
// 任一引擎配置无效时整体失败（fail-fast）。
func Build(cfg *Config, deps algo.Deps) (*Engines, error) {
	if len(cfg.Engines) == 0 {
		return nil, fmt.Errorf("config: no engines defined")
	}

	backend, err := buildStore(cfg.Store)
	if err != nil {
		return nil, err
	}
	if deps.Weights == nil && backend != nil {
		deps.Weights = store.NewWeights(backend)
	}

	engines := &Engines{
		backend:     backend,
		dispatchers: make(map[string]*dispatch.Dispatcher, len(cfg.Engines)),
	}
	for _, ec := range cfg.Engines {
		if ec.Name == "" {
			return nil, fmt.Errorf("config: engine name is required")
		}
		if _, dup := engines.dispatchers[ec.Name]; dup {
			return nil, fmt.Errorf("config: duplicate engine name %q", ec.Name)
		}

		a, err := algo.New(ec.Algorithm, deps)
		if err != nil {
			return nil, fmt.Errorf("config: engine %s: %w", ec.Name, err)
		}
		if err := a.Init(ec.Config); err != nil {
			return nil, fmt.Errorf("config: engine %s: %w", ec.Name, err)
		}

		d, err := dispatch.New(a, ec.TrainIf)
		if err != nil {
			return nil, fmt.Errorf("config: engine %s: %w", ec.Name, err)
		}
		engines.dispatchers[ec.Name] = d
	}
	return engines, nil
}

func buildStore(sc StoreConfig) (core.Store, error) {
	switch sc.Type {
	case "", "memory":
		return store.NewMemoryStore(), nil
	case "redis":
		if sc.Addr == "" {
			return nil, fmt.Errorf("config: redis store requires addr")
		}
		return store.NewRedisStore(sc.Addr, sc.DB)
	default:
		return nil, fmt.Errorf("config: unknown store type %q", sc.Type)
	}
}
