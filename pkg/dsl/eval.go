// Package dsl 提供训练门控表达式的解释器，使用 CEL
// (Common Expression Language) 实现：类型安全、高性能、线程安全。
package dsl

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvOnce sync.Once
)

// initCELEnv 初始化 CEL 环境，定义变量
func initCELEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("event", cel.DynType),
	)
	return env, err
}

// getCELEnv 获取或创建 CEL 环境
func getCELEnv() (*cel.Env, error) {
	var err error
	celEnvOnce.Do(func() {
		celEnv, err = initCELEnv()
	})
	return celEnv, err
}

// Predicate 是编译后的门控表达式，可并发复用。
//
// 表达式语法（CEL 标准语法），输入为 event 变量：
//   - 基础：event.scene == "search" / event.selected_id != ""
//   - 数值：event.ranked_size > 1 / event.selected_rank >= 3
//   - 逻辑：event.scene == "search" && event.ranked_size > 1
//   - 存在性：event.query != null
//   - 包含：event.query.contains("golang")
//
// 示例：
//   - `event.ranked_size > 1` → 只在有真实竞争时训练
//   - `event.scene != "onboarding"` → 引导流程的点击不参与训练
type Predicate struct {
	expr string
	prg  cel.Program
}

// NewPredicate 编译门控表达式。空表达式恒为真。
func NewPredicate(expr string) (*Predicate, error) {
	p := &Predicate{expr: expr}
	if expr == "" {
		return p, nil
	}

	env, err := getCELEnv()
	if err != nil {
		return nil, fmt.Errorf("dsl: env error: %v", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("dsl: compile error: %v", issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("dsl: program error: %v", err)
	}
	p.prg = prg
	return p, nil
}

// Evaluate 对一次事件输入求值，返回布尔结果。
// 访问不存在的 key 会报错，存在性检查请使用 event.key != null。
func (p *Predicate) Evaluate(input map[string]any) (bool, error) {
	if p.prg == nil {
		return true, nil
	}

	out, _, err := p.prg.Eval(map[string]any{"event": input})
	if err != nil {
		return false, fmt.Errorf("dsl: eval error: %v", err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("dsl: expression must return boolean, got %T", out.Value())
	}
	return result, nil
}

// String 返回原始表达式。
func (p *Predicate) String() string { return p.expr }
