package goplus

import (
	"fmt"
	"runtime/debug"

	"github.com/utrading/utrading-portfolio/pkg/logger"
)

// Recover 记录 panic 及调用栈，必须直接 defer 调用
func Recover() {
	if r := recover(); r != nil {
		logger.Error().
			Str("panic", fmt.Sprint(r)).
			Str("stack", string(debug.Stack())).
			Msg("goroutine panic recovered")
	}
}

// Safe 执行 fn，把 panic 转为 error 返回
func Safe(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			logger.Error().
				Str("panic", fmt.Sprint(r)).
				Str("stack", string(debug.Stack())).
				Msg("panic converted to error")
		}
	}()
	return fn()
}
