package schema

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/utrading/utrading-portfolio/config"
	"github.com/utrading/utrading-portfolio/internal/fill"
	"github.com/utrading/utrading-portfolio/internal/models"
	"github.com/utrading/utrading-portfolio/internal/trade"
)

// legacyTrade 只有必需列的旧表
type legacyTrade struct {
	ID        int64
	Wallet    string
	Coin      string
	Side      string
	Size      float64
	Price     *float64
	TradeID   string `gorm:"uniqueIndex"`
	Timestamp int64
	Fees      float64
}

func (legacyTrade) TableName() string { return "legacy_trades" }

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.HlTrade{}, &legacyTrade{}))
	return db
}

func closedTrade() trade.Trade {
	entry := 100.0
	opened := int64(1_700_000_000_000)
	duration := int64(1500)
	return trade.Trade{
		Wallet:      "0xw",
		Coin:        "BTC",
		Side:        fill.SideLong,
		Size:        1,
		EntryPrice:  &entry,
		ExitPrice:   110,
		RealizedPnl: 10,
		Fees:        0.2,
		OpenedAt:    &opened,
		ClosedAt:    opened + duration,
		DurationMs:  &duration,
		TradeID:     "42",
	}
}

func TestProject_FullCapabilities(t *testing.T) {
	row := Project(closedTrade(), Full(2))

	assert.Equal(t, "0xw", row["wallet"])
	assert.Equal(t, "BTC", row["coin"])
	assert.Equal(t, "Long", row["side"])
	assert.Equal(t, 1.0, row["size"])
	assert.Equal(t, 100.0, row["price"])
	assert.Equal(t, "42", row["trade_id"])
	assert.Equal(t, int64(1_700_000_001_500), row["timestamp"])

	assert.Equal(t, 100.0, row[ColEntryPrice])
	assert.Equal(t, 110.0, row[ColExitPrice])
	assert.Equal(t, 10.0, row[ColPnl])
	assert.Equal(t, 10.0, row[ColRealizedPnl])
	assert.Equal(t, 0.2, row[ColFees])
	assert.Equal(t, "2023-11-14T22:13:20.000Z", row[ColOpenedAt])
	assert.Equal(t, "2023-11-14T22:13:21.500Z", row[ColClosedAt])
	assert.Equal(t, int64(1500), row[ColDurationMs])
	assert.Len(t, row, len(RequiredColumns)+len(OptionalColumns))
}

func TestProject_OnlySupportedColumns(t *testing.T) {
	caps := Capabilities{Version: 1, Fees: true, ClosedAt: true}
	row := Project(closedTrade(), caps)

	assert.Len(t, row, len(RequiredColumns)+2)
	assert.Contains(t, row, ColFees)
	assert.Contains(t, row, ColClosedAt)
	assert.NotContains(t, row, ColEntryPrice)
	assert.NotContains(t, row, ColDurationMs)
}

func TestProject_StandaloneHasNulls(t *testing.T) {
	tr := closedTrade()
	tr.EntryPrice = nil
	tr.OpenedAt = nil
	tr.DurationMs = nil

	row := Project(tr, Full(2))
	assert.Nil(t, row["price"])
	assert.Nil(t, row[ColEntryPrice])
	assert.Nil(t, row[ColOpenedAt])
	assert.Nil(t, row[ColDurationMs])
	assert.NotNil(t, row[ColClosedAt])
}

func TestCapabilities_FromConfig(t *testing.T) {
	cfg := config.Default().Schema
	cfg.Fees = false
	caps := FromConfig(cfg)

	assert.Equal(t, cfg.Version, caps.Version)
	assert.False(t, caps.Supports(ColFees))
	assert.True(t, caps.Supports(ColExitPrice))
	assert.False(t, caps.Supports("unknown"))
	assert.Equal(t, caps, FromMap(caps.Version, caps.Map()))
}

func TestProber_FullTable(t *testing.T) {
	db := setupTestDB(t)
	caps := NewProber(db, 3, time.Minute).Probe(context.Background(), "hl_trades")
	assert.Equal(t, Full(3), caps)
}

func TestProber_LegacyTable(t *testing.T) {
	db := setupTestDB(t)
	caps := NewProber(db, 1, time.Minute).Probe(context.Background(), "legacy_trades")

	assert.True(t, caps.Fees)
	assert.False(t, caps.EntryPrice)
	assert.False(t, caps.OpenedAt)
	assert.False(t, caps.DurationMs)
}

func TestProber_MissingTableMeansNothingSupported(t *testing.T) {
	db := setupTestDB(t)
	caps := NewProber(db, 1, time.Minute).Probe(context.Background(), "absent")
	assert.Equal(t, Capabilities{Version: 1}, caps)
}

func TestProber_CachesResult(t *testing.T) {
	db := setupTestDB(t)
	p := NewProber(db, 1, time.Minute)

	first := p.Probe(context.Background(), "legacy_trades")
	require.NoError(t, db.Exec("ALTER TABLE legacy_trades ADD COLUMN exit_price REAL").Error)

	assert.Equal(t, first, p.Probe(context.Background(), "legacy_trades"))

	p.Invalidate("legacy_trades")
	assert.True(t, p.Probe(context.Background(), "legacy_trades").ExitPrice)
}

func TestResolver(t *testing.T) {
	db := setupTestDB(t)

	cfg := config.Default().Schema
	cfg.Table = "legacy_trades"
	r := NewResolver(cfg, db)
	assert.True(t, r.Capabilities(context.Background()).EntryPrice)

	cfg.Mode = "probe"
	r = NewResolver(cfg, db)
	assert.Equal(t, "legacy_trades", r.Table())
	assert.False(t, r.Capabilities(context.Background()).EntryPrice)
}
