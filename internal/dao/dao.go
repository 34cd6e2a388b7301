package dao

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/utrading/utrading-portfolio/pkg/logger"
)

var db *gorm.DB

// InitDAO 初始化所有 DAO（应用启动时调用）
func InitDAO(conn *gorm.DB) {
	db = conn
}

// WriteStats 一次写入的结果
type WriteStats struct {
	Written    int // 新写入或更新
	Duplicates int // 已存在，视为成功
	Failed     int
}

func (s *WriteStats) Merge(o WriteStats) {
	s.Written += o.Written
	s.Duplicates += o.Duplicates
	s.Failed += o.Failed
}

// IsDuplicateKey 判断唯一键冲突
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == 1062 {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// insertIgnore 冲突时跳过的插入子句
// mysql 使用 INSERT IGNORE，sqlite 使用 ON CONFLICT DO NOTHING
func insertIgnore(conn *gorm.DB) clause.Expression {
	if conn.Dialector.Name() == "mysql" {
		return clause.Insert{Modifier: "IGNORE"}
	}
	return clause.OnConflict{DoNothing: true}
}

// upsertEach 批量 upsert，整批失败时逐条重试
func upsertEach[T any](table string, rows []*T, onConflict clause.OnConflict) WriteStats {
	var stats WriteStats
	if len(rows) == 0 {
		return stats
	}

	err := db.Clauses(onConflict).Create(rows).Error
	if err == nil {
		stats.Written = len(rows)
		return stats
	}

	logger.Warn().Err(err).Str("table", table).Int("count", len(rows)).Msg("batch upsert failed, retrying one by one")
	for _, row := range rows {
		if err = db.Clauses(onConflict).Create(row).Error; err != nil {
			stats.Failed++
			logger.Error().Err(err).Str("table", table).Msg("upsert row failed")
			continue
		}
		stats.Written++
	}
	return stats
}
