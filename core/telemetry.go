package core

import (
	"log"
	"time"
)

// Telemetry 是可选的观测协作方接口，纯旁路：
// 核心逻辑不依赖其返回值，实现方可以丢弃任何调用。
type Telemetry interface {
	// Start 标记一个阶段开始
	Start(name string)

	// Finish 标记一个阶段结束
	Finish(name string)

	// Measure 包裹执行 fn 并记录耗时
	Measure(name string, fn func())

	// AddMetadata 附加键值元信息（如 batch_size、pair_count）
	AddMetadata(name string, kv map[string]any)
}

// NopTelemetry 是 Telemetry 的空实现，未注入观测方时使用。
type NopTelemetry struct{}

func (NopTelemetry) Start(string)                    {}
func (NopTelemetry) Finish(string)                   {}
func (NopTelemetry) Measure(_ string, fn func())     { fn() }
func (NopTelemetry) AddMetadata(string, map[string]any) {}

// Clock 抽象墙上时钟，便于测试中注入假时钟。
type Clock interface {
	Now() time.Time
}

// SystemClock 使用系统时间。
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock 返回固定时间，测试用。
type FixedClock struct {
	T time.Time
}

func (c FixedClock) Now() time.Time { return c.T }

// Notifier 是面向运维/用户的轻量通知协作方接口。
type Notifier interface {
	Info(message string)
}

// NopNotifier 丢弃所有通知。
type NopNotifier struct{}

func (NopNotifier) Info(string) {}

// LogNotifier 通过标准库 log 输出通知，是默认实现。
type LogNotifier struct{}

func (LogNotifier) Info(message string) { log.Println(message) }
