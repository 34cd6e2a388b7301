package dao

import (
	"time"

	"github.com/utrading/utrading-portfolio/internal/models"
)

type SyncRunDAO struct{}

var _syncRun = &SyncRunDAO{}

func SyncRun() *SyncRunDAO {
	return _syncRun
}

func (d *SyncRunDAO) Create(run *models.SyncRun) error {
	return db.Create(run).Error
}

// Latest 最近一次同步记录
func (d *SyncRunDAO) Latest() (*models.SyncRun, error) {
	var run models.SyncRun
	if err := db.Order("id DESC").First(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// DeleteOld 删除早于 before 的同步记录
func (d *SyncRunDAO) DeleteOld(before time.Time) (int64, error) {
	res := db.Where("created_at < ?", before).Delete(&models.SyncRun{})
	return res.RowsAffected, res.Error
}

type SnapshotDAO struct{}

var _snapshot = &SnapshotDAO{}

func Snapshot() *SnapshotDAO {
	return _snapshot
}

func (d *SnapshotDAO) Create(s *models.PortfolioSnapshot) error {
	return db.Create(s).Error
}

func (d *SnapshotDAO) DeleteOld(before time.Time) (int64, error) {
	res := db.Where("created_at < ?", before).Delete(&models.PortfolioSnapshot{})
	return res.RowsAffected, res.Error
}

func (d *SyncRunDAO) Count() (int64, error) {
	var n int64
	err := db.Model(&models.SyncRun{}).Count(&n).Error
	return n, err
}

// DeleteOldest 删除最早的 n 条同步记录
func (d *SyncRunDAO) DeleteOldest(n int64) (int64, error) {
	if n <= 0 {
		return 0, nil
	}
	sub := db.Model(&models.SyncRun{}).Select("id").Order("id ASC").Limit(int(n))
	var ids []uint
	if err := sub.Pluck("id", &ids).Error; err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	res := db.Where("id IN ?", ids).Delete(&models.SyncRun{})
	return res.RowsAffected, res.Error
}
