package dao

import (
	"context"
	"fmt"

	"gorm.io/plugin/dbresolver"

	"github.com/utrading/utrading-portfolio/pkg/logger"
)

type TradeDAO struct{}

var _trade = &TradeDAO{}

// Trade 获取 TradeDAO 单例
func Trade() *TradeDAO {
	return _trade
}

// ListTradeIDs 读取已持久化的 trade_id，优先走从库
func (d *TradeDAO) ListTradeIDs(ctx context.Context, table string) (map[string]struct{}, error) {
	var ids []string
	err := db.WithContext(ctx).
		Clauses(dbresolver.Read).
		Table(table).
		Pluck("trade_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list trade ids from %s: %w", table, err)
	}

	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	return seen, nil
}

// InsertIgnore 按 trade_id 幂等插入投影后的行
// 整批失败时逐条重试：唯一键冲突计为重复，其它错误记日志后跳过
func (d *TradeDAO) InsertIgnore(table string, rows []map[string]any) WriteStats {
	var stats WriteStats
	if len(rows) == 0 {
		return stats
	}

	res := db.Table(table).Clauses(insertIgnore(db)).Create(&rows)
	if res.Error == nil {
		stats.Written = int(res.RowsAffected)
		stats.Duplicates = len(rows) - stats.Written
		return stats
	}

	logger.Warn().Err(res.Error).Str("table", table).Int("count", len(rows)).Msg("batch insert failed, retrying one by one")
	for _, row := range rows {
		r := db.Table(table).Create(row)
		switch {
		case r.Error == nil:
			stats.Written++
		case IsDuplicateKey(r.Error):
			stats.Duplicates++
		default:
			stats.Failed++
			logger.Error().Err(r.Error).
				Str("table", table).
				Any("trade_id", row["trade_id"]).
				Msg("insert trade failed")
		}
	}
	return stats
}

// Count 表中的交易数
func (d *TradeDAO) Count(table string) (int64, error) {
	var n int64
	err := db.Table(table).Count(&n).Error
	return n, err
}
