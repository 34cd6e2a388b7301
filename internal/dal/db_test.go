package dal

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/utrading/utrading-portfolio/config"
	"github.com/utrading/utrading-portfolio/internal/dao"
	"github.com/utrading/utrading-portfolio/internal/models"
)

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	cfg := config.Default().DB
	cfg.Driver = "sqlite"
	cfg.DSN = fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	cfg.MaxOpenConnections = 1

	conn, err := Open(cfg)
	require.NoError(t, err)
	return conn
}

func TestOpen_SQLiteAndMigrate(t *testing.T) {
	conn := openSQLite(t)

	require.NoError(t, AutoMigrate(conn))
	for _, m := range Models() {
		assert.True(t, conn.Migrator().HasTable(m), getTableName(m))
	}
	assert.True(t, conn.Migrator().HasColumn("hl_trades", "duration_ms"))

	assert.NoError(t, Ping(context.Background(), conn))
}

func TestAutoMigrate_NilConn(t *testing.T) {
	assert.ErrorIs(t, AutoMigrate(nil), ErrStoreUnavailable)
}

// sqlite 的索引名在整个库内唯一，逐表迁移可暴露重名
func TestModels_MigrateOneByOne(t *testing.T) {
	conn := openSQLite(t)

	for _, m := range Models() {
		require.NoError(t, conn.AutoMigrate(m), getTableName(m))
	}

	indexes := map[any]string{
		&models.HlTrade{}:                  "uidx_trade_id",
		&models.HlPosition{}:               "uidx_hl_pos_wallet_coin",
		&models.PolymarketPosition{}:       "uidx_pm_pos_wallet_asset",
		&models.PolymarketClosedPosition{}: "uidx_pm_closed_wallet_asset",
		&models.PolymarketTrade{}:          "uidx_pm_trade",
		&models.PolymarketActivity{}:       "uidx_pm_activity",
		&models.FantasyHolding{}:           "uidx_fantasy_wallet_token",
		&models.SyncRun{}:                  "idx_sync_runs_created",
		&models.PortfolioSnapshot{}:        "idx_snapshots_created",
	}
	for m, name := range indexes {
		assert.True(t, conn.Migrator().HasIndex(m, name), "%s.%s", getTableName(m), name)
	}
}

func TestModels_UpsertRoundTrip(t *testing.T) {
	conn := openSQLite(t)
	require.NoError(t, AutoMigrate(conn))
	dao.InitDAO(conn)

	m := dao.Mirror()
	for i, price := range []float64{0.4, 0.6} {
		stats := m.UpsertHlPositions([]*models.HlPosition{{Wallet: "0xw", Coin: "ETH", Szi: price}})
		assert.Zero(t, stats.Failed, "hl_positions round %d", i)

		stats = m.UpsertPolymarketPositions([]*models.PolymarketPosition{{Wallet: "0xw", Asset: "a1", ConditionID: "c1", CurPrice: price}})
		assert.Zero(t, stats.Failed, "polymarket_positions round %d", i)

		stats = m.UpsertPolymarketClosedPositions([]*models.PolymarketClosedPosition{{Wallet: "0xw", Asset: "a1", ConditionID: "c1", CurPrice: price}})
		assert.Zero(t, stats.Failed, "polymarket_closed_positions round %d", i)

		stats = m.InsertPolymarketTrades([]*models.PolymarketTrade{{Wallet: "0xw", TransactionHash: "0xh", Asset: "a1", Side: "BUY", ConditionID: "c1", Size: 1, Price: price}})
		assert.Zero(t, stats.Failed, "polymarket_trades round %d", i)

		stats = m.InsertPolymarketActivity([]*models.PolymarketActivity{{Wallet: "0xw", TransactionHash: "0xh", Type: "TRADE", Asset: "a1", Price: price}})
		assert.Zero(t, stats.Failed, "polymarket_activity round %d", i)

		stats = m.UpsertFantasyHoldings([]*models.FantasyHolding{{Wallet: "0xw", TokenID: "t1", Price: price}})
		assert.Zero(t, stats.Failed, "fantasy_holdings round %d", i)
	}

	for _, model := range []any{
		&models.HlPosition{},
		&models.PolymarketPosition{},
		&models.PolymarketClosedPosition{},
		&models.PolymarketTrade{},
		&models.PolymarketActivity{},
		&models.FantasyHolding{},
	} {
		var n int64
		require.NoError(t, conn.Model(model).Count(&n).Error)
		assert.Equal(t, int64(1), n, getTableName(model))
	}

	// upsert 覆盖，追加型表保留首条
	var closed models.PolymarketClosedPosition
	require.NoError(t, conn.First(&closed).Error)
	assert.InDelta(t, 0.6, closed.CurPrice, 1e-9)

	var trade models.PolymarketTrade
	require.NoError(t, conn.First(&trade).Error)
	assert.InDelta(t, 0.4, trade.Price, 1e-9)

	run := &models.SyncRun{
		RunID:     "run-1",
		Trigger:   "startup",
		Status:    "ok",
		Counts:    map[string]models.SourceCount{"hyperliquid": {OK: true, Fetched: 2}},
		StartedAt: time.Now(),
	}
	require.NoError(t, dao.SyncRun().Create(run))
	require.NoError(t, dao.Snapshot().Create(&models.PortfolioSnapshot{RunID: "run-1", TotalUSD: "1.5"}))

	latest, err := dao.SyncRun().Latest()
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Counts["hyperliquid"].Fetched)

	deleted, err := dao.Snapshot().DeleteOld(time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}
