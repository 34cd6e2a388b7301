package dao

import (
	"gorm.io/gorm/clause"

	"github.com/utrading/utrading-portfolio/internal/models"
)

type MirrorDAO struct{}

var _mirror = &MirrorDAO{}

// Mirror 上游镜像表（持仓、预测市场、体育 token）
func Mirror() *MirrorDAO {
	return _mirror
}

func (d *MirrorDAO) UpsertHlPositions(rows []*models.HlPosition) WriteStats {
	return upsertEach("hl_positions", rows, clause.OnConflict{
		Columns: []clause.Column{{Name: "wallet"}, {Name: "coin"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"szi", "entry_px", "position_value", "unrealized_pnl",
			"margin_used", "leverage", "leverage_type", "return_on_equity", "updated_at",
		}),
	})
}

func (d *MirrorDAO) UpsertPolymarketPositions(rows []*models.PolymarketPosition) WriteStats {
	return upsertEach("polymarket_positions", rows, clause.OnConflict{
		Columns: []clause.Column{{Name: "wallet"}, {Name: "asset"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"condition_id", "title", "slug", "outcome", "size", "avg_price", "cur_price",
			"initial_value", "current_value", "cash_pnl", "realized_pnl", "end_date", "updated_at",
		}),
	})
}

func (d *MirrorDAO) UpsertPolymarketClosedPositions(rows []*models.PolymarketClosedPosition) WriteStats {
	return upsertEach("polymarket_closed_positions", rows, clause.OnConflict{
		Columns: []clause.Column{{Name: "wallet"}, {Name: "asset"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"condition_id", "title", "outcome", "avg_price", "total_bought",
			"realized_pnl", "cur_price", "timestamp", "updated_at",
		}),
	})
}

// 成交与活动是追加型数据，已存在即跳过
func (d *MirrorDAO) InsertPolymarketTrades(rows []*models.PolymarketTrade) WriteStats {
	return upsertEach("polymarket_trades", rows, clause.OnConflict{DoNothing: true})
}

func (d *MirrorDAO) InsertPolymarketActivity(rows []*models.PolymarketActivity) WriteStats {
	return upsertEach("polymarket_activity", rows, clause.OnConflict{DoNothing: true})
}

func (d *MirrorDAO) UpsertFantasyHoldings(rows []*models.FantasyHolding) WriteStats {
	return upsertEach("fantasy_holdings", rows, clause.OnConflict{
		Columns:   []clause.Column{{Name: "wallet"}, {Name: "token_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "shares", "price", "value", "updated_at"}),
	})
}
