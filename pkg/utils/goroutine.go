package utils

import (
	"runtime/debug"

	"go.uber.org/zap"

	"yqhp/task-space/pkg/logger"
)

// SafeGo 安全地启动一个 goroutine，自动捕获 panic 并记录日志
// 使用方式: utils.SafeGo(func() { ... })
func SafeGo(fn func()) {
	SafeGoWithName("", fn)
}

// SafeGoWithName 安全地启动一个带名称的 goroutine，便于日志追踪
// 使用方式: utils.SafeGoWithName("propagate-shared", func() { ... })
func SafeGoWithName(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("goroutine panic recovered",
					zap.String("goroutine", name),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()))
			}
		}()
		fn()
	}()
}
