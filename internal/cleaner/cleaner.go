package cleaner

import (
	"time"

	"github.com/utrading/utrading-portfolio/internal/dao"
	"github.com/utrading/utrading-portfolio/pkg/goplus"
	"github.com/utrading/utrading-portfolio/pkg/logger"
)

// 同步记录数量上限，超过时删除最旧的
const maxSyncRuns = 100000

// Cleaner 数据清理器，定时清理同步记录与组合快照
type Cleaner struct {
	retention time.Duration
	interval  time.Duration // 清理间隔
	done      chan struct{} // 停止信号
	now       func() time.Time
}

// NewCleaner 创建清理器
func NewCleaner(retention time.Duration) *Cleaner {
	return &Cleaner{
		retention: retention,
		interval:  1 * time.Hour, // 固定 1 小时
		done:      make(chan struct{}),
		now:       time.Now,
	}
}

// Start 启动清理任务
func (c *Cleaner) Start() {
	goplus.Go(func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		logger.Info().Dur("retention", c.retention).Msg("cleaner started")

		// 启动时立即执行一次
		c.clean()

		for {
			select {
			case <-ticker.C:
				c.clean()
			case <-c.done:
				logger.Info().Msg("cleaner stopped")
				return
			}
		}
	})
}

// Stop 停止清理器
func (c *Cleaner) Stop() {
	close(c.done)
}

// clean 执行清理任务
func (c *Cleaner) clean() {
	if c.retention <= 0 {
		return
	}
	logger.Debug().Msg("running cleanup task")

	if err := c.cleanSyncRuns(); err != nil {
		logger.Error().Err(err).Msg("clean sync runs failed")
	}

	if err := c.cleanSnapshots(); err != nil {
		logger.Error().Err(err).Msg("clean portfolio snapshots failed")
	}
}

// cleanSyncRuns 策略：时间优先，数量兜底
func (c *Cleaner) cleanSyncRuns() error {
	cutoff := c.now().Add(-c.retention)
	deleted, err := dao.SyncRun().DeleteOld(cutoff)
	if err != nil {
		return err
	}
	if deleted > 0 {
		logger.Info().
			Int64("deleted", deleted).
			Time("cutoff", cutoff).
			Msg("cleaned old sync runs by time")
	}

	count, err := dao.SyncRun().Count()
	if err != nil {
		return err
	}

	if count > maxSyncRuns {
		deleted, err = dao.SyncRun().DeleteOldest(count - maxSyncRuns)
		if err != nil {
			return err
		}
		if deleted > 0 {
			logger.Info().
				Int64("deleted", deleted).
				Int64("total", count).
				Int64("limit", maxSyncRuns).
				Msg("cleaned excess sync runs by count")
		}
	}

	return nil
}

func (c *Cleaner) cleanSnapshots() error {
	cutoff := c.now().Add(-c.retention)
	deleted, err := dao.Snapshot().DeleteOld(cutoff)
	if err != nil {
		return err
	}

	if deleted > 0 {
		logger.Info().
			Int64("deleted", deleted).
			Time("cutoff", cutoff).
			Msg("cleaned old portfolio snapshots")
	}

	return nil
}
