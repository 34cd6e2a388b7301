package fill

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	hl "github.com/sonirico/go-hyperliquid"
	"github.com/spf13/cast"

	"github.com/utrading/utrading-portfolio/pkg/logger"
)

var (
	ErrMissingField = errors.New("missing required field")
	ErrNonPositive  = errors.New("non-positive value")
)

// Stats 一次归一化的计数
type Stats struct {
	Total      int // 输入条数
	Normalized int // 输出条数（拆分后可能多于输入）
	Skipped    int // 非合约开平仓方向
	Dropped    int // 解析失败
}

// Normalizer 将交易所原始成交转为 Fill
type Normalizer struct {
	splitFlips bool
}

func NewNormalizer(splitFlips bool) *Normalizer {
	return &Normalizer{splitFlips: splitFlips}
}

// Normalize 逐条解析，坏数据只丢弃不中断；输出不排序
func (n *Normalizer) Normalize(wallet string, raw []hl.Fill) ([]Fill, Stats) {
	stats := Stats{Total: len(raw)}
	out := make([]Fill, 0, len(raw))

	for _, r := range raw {
		if r.Dir == RawLongToShort || r.Dir == RawShortToLong {
			if !n.splitFlips {
				stats.Skipped++
				continue
			}
			parts, err := splitReversed(wallet, r)
			if err != nil {
				stats.Dropped++
				logDropped(wallet, r, err)
				continue
			}
			out = append(out, parts...)
			continue
		}

		dir := ParseDirection(r.Dir)
		if dir == DirUnknown {
			stats.Skipped++
			logger.Debug().
				Str("wallet", wallet).
				Str("coin", r.Coin).
				Str("dir", r.Dir).
				Int64("tid", r.Tid).
				Msg("skip non-perp fill")
			continue
		}

		f, err := parseFill(wallet, r, dir)
		if err != nil {
			stats.Dropped++
			logDropped(wallet, r, err)
			continue
		}
		out = append(out, f)
	}

	stats.Normalized = len(out)
	return out, stats
}

func logDropped(wallet string, r hl.Fill, err error) {
	logger.Warn().
		Err(err).
		Str("wallet", wallet).
		Str("coin", r.Coin).
		Str("dir", r.Dir).
		Int64("tid", r.Tid).
		Msg("drop malformed fill")
}

func parseFill(wallet string, r hl.Fill, dir Direction) (Fill, error) {
	if r.Coin == "" {
		return Fill{}, fmt.Errorf("coin: %w", ErrMissingField)
	}
	size, err := requiredPositive("sz", r.Size)
	if err != nil {
		return Fill{}, err
	}
	price, err := requiredPositive("px", r.Price)
	if err != nil {
		return Fill{}, err
	}
	fee, err := optional("fee", r.Fee)
	if err != nil {
		return Fill{}, err
	}
	pnl, err := optional("closedPnl", r.ClosedPnl)
	if err != nil {
		return Fill{}, err
	}

	return Fill{
		Wallet:    wallet,
		Coin:      r.Coin,
		Direction: dir,
		Size:      size,
		Price:     price,
		Fee:       fee,
		ClosedPnl: pnl,
		Timestamp: r.Time,
		ID:        strconv.FormatInt(r.Tid, 10),
	}, nil
}

func requiredPositive(name, v string) (float64, error) {
	if v == "" {
		return 0, fmt.Errorf("%s: %w", name, ErrMissingField)
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if f <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%s=%s: %w", name, v, ErrNonPositive)
	}
	return f, nil
}

func optional(name, v string) (float64, error) {
	if v == "" {
		return 0, nil
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return f, nil
}

// splitReversed 把反手成交拆成平仓与开仓两部分
// 平仓数量 = |startPosition|，开仓数量 = sz - 平仓数量；手续费按数量分摊
func splitReversed(wallet string, r hl.Fill) ([]Fill, error) {
	closeDir, openDir := DirCloseLong, DirOpenShort
	if r.Dir == RawShortToLong {
		closeDir, openDir = DirCloseShort, DirOpenLong
	}

	base, err := parseFill(wallet, r, closeDir)
	if err != nil {
		return nil, err
	}
	startPos, err := cast.ToFloat64E(r.StartPosition)
	if err != nil || r.StartPosition == "" {
		return nil, fmt.Errorf("startPosition: %w", ErrMissingField)
	}

	closeSize := math.Min(math.Abs(startPos), base.Size)
	openSize := math.Max(base.Size-closeSize, 0)

	parts := make([]Fill, 0, 2)
	if closeSize > 0 {
		c := base
		c.Size = closeSize
		c.Fee = base.Fee * closeSize / base.Size
		parts = append(parts, c)
	}
	if openSize > 0 {
		o := base
		o.Direction = openDir
		o.Size = openSize
		o.Fee = base.Fee * openSize / base.Size
		o.ClosedPnl = 0
		o.ID = base.ID + "-open"
		parts = append(parts, o)
	}
	return parts, nil
}
