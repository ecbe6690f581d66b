// Package ranklearn 是一个在线学习的候选打分引擎（Rank & Learn）。
//
// 设计要点：
// - Feedback-first: 每次用户选择即一次训练信号（pairwise hinge，被选中项 vs 高排位竞争项）
// - 推理/训练分离: 打分走批归一化折叠后的融合缓存，训练走完整前向/反向
// - 算法可插拔: neural / linear / noop 经统一 Algorithm 接口注册，配置驱动装配
// - 状态原子持久化: 权重、训练历史、优化器状态打包为带版本号的单一文档
package ranklearn

import (
	"github.com/rushteam/ranklearn/algo"
	"github.com/rushteam/ranklearn/core"
	"github.com/rushteam/ranklearn/dispatch"
)

// 轻量 facade：便于用户直接 import "ranklearn" 使用核心抽象。
type Algorithm = algo.Algorithm
type Candidate = core.Candidate
type SelectionEvent = core.SelectionEvent
type Dispatcher = dispatch.Dispatcher

var NewCandidate = core.NewCandidate
