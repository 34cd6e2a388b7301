package sources

import (
	"context"
	"errors"
	"fmt"
	"time"

	hl "github.com/sonirico/go-hyperliquid"
	"github.com/spf13/cast"

	"github.com/utrading/utrading-portfolio/config"
	"github.com/utrading/utrading-portfolio/internal/models"
	"github.com/utrading/utrading-portfolio/pkg/logger"
)

// 单次 userFillsByTime 最多返回的条数
const hlFillsPageSize = 2000

// HLInfo Hyperliquid info 接口中用到的部分
type HLInfo interface {
	UserFillsByTime(ctx context.Context, address string, startTime int64, endTime *int64) ([]hl.Fill, error)
	UserState(ctx context.Context, address, dex string) (*hl.UserState, error)
}

// Hyperliquid 拉取成交与当前合约持仓
type Hyperliquid struct {
	info     HLInfo
	wallets  []string
	lookback time.Duration
	maxPages int
	now      func() time.Time
}

// NewHyperliquid 传入非空 meta，避免创建时请求元数据
func NewHyperliquid(cfg config.Hyperliquid, lookback time.Duration) *Hyperliquid {
	info := hl.NewInfo(context.Background(), cfg.APIURL, true, &hl.Meta{}, &hl.SpotMeta{})
	return NewHyperliquidWithInfo(info, cfg.Wallets, lookback)
}

func NewHyperliquidWithInfo(info HLInfo, wallets []string, lookback time.Duration) *Hyperliquid {
	return &Hyperliquid{
		info:     info,
		wallets:  wallets,
		lookback: lookback,
		maxPages: 5,
		now:      time.Now,
	}
}

func (h *Hyperliquid) Name() string {
	return "hyperliquid"
}

// Fetch 钱包之间互不影响；全部失败时返回错误
func (h *Hyperliquid) Fetch(ctx context.Context) (*Batch, error) {
	batch := newBatch(h.Name())
	start := h.now().Add(-h.lookback).UnixMilli()

	var failed []error
	for _, wallet := range h.wallets {
		fills, err := h.fetchFills(ctx, wallet, start)
		if err != nil {
			failed = append(failed, fmt.Errorf("%s fills: %w", wallet, err))
			logger.Warn().Err(err).Str("wallet", wallet).Msg("fetch hyperliquid fills failed")
			continue
		}
		batch.Fills[wallet] = fills

		if err = h.fetchPositions(ctx, wallet, batch); err != nil {
			batch.Partial = append(batch.Partial, fmt.Errorf("%s state: %w", wallet, err))
			logger.Warn().Err(err).Str("wallet", wallet).Msg("fetch hyperliquid user state failed")
		}
	}

	if len(h.wallets) > 0 && len(failed) == len(h.wallets) {
		return nil, errors.Join(failed...)
	}
	batch.Partial = append(batch.Partial, failed...)
	return batch, nil
}

// fetchFills 按时间翻页直到不足一页
func (h *Hyperliquid) fetchFills(ctx context.Context, wallet string, start int64) ([]hl.Fill, error) {
	var all []hl.Fill
	seen := make(map[int64]struct{})

	for page := 0; page < h.maxPages; page++ {
		fills, err := h.info.UserFillsByTime(ctx, wallet, start, nil)
		if err != nil {
			return nil, err
		}

		last := start
		for _, f := range fills {
			if _, ok := seen[f.Tid]; ok {
				continue
			}
			seen[f.Tid] = struct{}{}
			all = append(all, f)
			if f.Time > last {
				last = f.Time
			}
		}

		if len(fills) < hlFillsPageSize || last == start {
			break
		}
		start = last
	}

	logger.Debug().Str("wallet", wallet).Int("fills", len(all)).Msg("hyperliquid fills fetched")
	return all, nil
}

func (h *Hyperliquid) fetchPositions(ctx context.Context, wallet string, batch *Batch) error {
	state, err := h.info.UserState(ctx, wallet, "")
	if err != nil {
		return err
	}

	now := h.now()
	for _, ap := range state.AssetPositions {
		p := ap.Position
		row := &models.HlPosition{
			Wallet:         wallet,
			Coin:           p.Coin,
			Szi:            cast.ToFloat64(p.Szi),
			PositionValue:  cast.ToFloat64(p.PositionValue),
			UnrealizedPnl:  cast.ToFloat64(p.UnrealizedPnl),
			MarginUsed:     cast.ToFloat64(p.MarginUsed),
			Leverage:       p.Leverage.Value,
			LeverageType:   p.Leverage.Type,
			ReturnOnEquity: cast.ToFloat64(p.ReturnOnEquity),
			UpdatedAt:      now,
		}
		if p.EntryPx != nil {
			px := cast.ToFloat64(*p.EntryPx)
			row.EntryPx = &px
		}
		batch.Items = append(batch.Items, row)
	}

	batch.ValueUSD = batch.ValueUSD.Add(dec(state.MarginSummary.AccountValue))
	return nil
}
