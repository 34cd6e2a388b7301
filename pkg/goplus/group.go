package goplus

import (
	"sync"
	"sync/atomic"
)

var (
	defaultGroup     *WaitGroup
	defaultGroupOnce sync.Once
)

// DefaultGroup 进程级 goroutine 组，退出前可 Wait
func DefaultGroup() *WaitGroup {
	defaultGroupOnce.Do(func() {
		defaultGroup = &WaitGroup{}
	})
	return defaultGroup
}

// Go 在默认组中启动带 recover 的 goroutine
func Go(fn func()) {
	DefaultGroup().Go(fn)
}

func Wait() {
	DefaultGroup().Wait()
}

type WaitGroup struct {
	wg      sync.WaitGroup
	running atomic.Int64
}

func (g *WaitGroup) Go(fn func()) {
	g.running.Add(1)
	g.wg.Add(1)

	go func() {
		defer func() {
			g.running.Add(-1)
			g.wg.Done()
		}()
		defer Recover()

		fn()
	}()
}

// Running 当前仍在运行的 goroutine 数
func (g *WaitGroup) Running() int64 {
	return g.running.Load()
}

func (g *WaitGroup) Wait() {
	g.wg.Wait()
}
