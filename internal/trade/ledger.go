package trade

import (
	"github.com/utrading/utrading-portfolio/internal/fill"
)

// Epsilon 剩余仓位小于等于该值视为完全平仓
const Epsilon = 1e-4

// PositionAccumulator 单个 coin-side 的持仓累加器
// TotalCost / TotalSize 即加权平均开仓价
type PositionAccumulator struct {
	Coin      string
	Side      fill.Side
	TotalSize float64
	TotalCost float64
	TotalFees float64
	OpenedAt  int64
}

// AvgPrice 加权平均开仓价，空仓返回 0
func (a *PositionAccumulator) AvgPrice() float64 {
	if a.TotalSize <= 0 {
		return 0
	}
	return a.TotalCost / a.TotalSize
}

func (a *PositionAccumulator) add(f fill.Fill) {
	a.TotalSize += f.Size
	a.TotalCost += f.Size * f.Price
	a.TotalFees += f.Fee
}

// reduce 按比例扣减，返回扣减前的平均价与分摊的开仓手续费
func (a *PositionAccumulator) reduce(matched float64) (entry, fee float64) {
	entry = a.TotalCost / a.TotalSize
	ratio := matched / a.TotalSize
	fee = a.TotalFees * ratio

	a.TotalSize -= matched
	a.TotalCost *= 1 - ratio
	a.TotalFees *= 1 - ratio
	return entry, fee
}

// Ledger 一次聚合内的持仓表，key 为 coin-side
// 非并发安全，只归属单次 Aggregate 调用
type Ledger struct {
	positions map[string]*PositionAccumulator
}

func NewLedger() *Ledger {
	return &Ledger{positions: make(map[string]*PositionAccumulator)}
}

func ledgerKey(coin string, side fill.Side) string {
	return coin + "-" + string(side)
}

// Get 返回 coin-side 的累加器，不存在返回 nil
func (l *Ledger) Get(coin string, side fill.Side) *PositionAccumulator {
	return l.positions[ledgerKey(coin, side)]
}

func (l *Ledger) Len() int {
	return len(l.positions)
}

// Positions 当前未平仓的累加器（无序）
func (l *Ledger) Positions() []*PositionAccumulator {
	out := make([]*PositionAccumulator, 0, len(l.positions))
	for _, acc := range l.positions {
		out = append(out, acc)
	}
	return out
}

// Apply 处理一笔成交；平仓时返回生成的 Trade
func (l *Ledger) Apply(f fill.Fill) (Trade, bool) {
	key := f.Key()

	if f.Direction.IsOpen() {
		acc, ok := l.positions[key]
		if !ok {
			acc = &PositionAccumulator{
				Coin:     f.Coin,
				Side:     f.Direction.Side(),
				OpenedAt: f.Timestamp,
			}
			l.positions[key] = acc
		}
		acc.add(f)
		return Trade{}, false
	}

	if !f.Direction.IsClose() {
		return Trade{}, false
	}

	acc, ok := l.positions[key]
	if !ok || acc.TotalSize <= 0 {
		return standalone(f), true
	}

	// 平仓数量超过持仓时只匹配可用部分，超出部分丢弃
	matched := min(f.Size, acc.TotalSize)
	entry, entryFee := acc.reduce(matched)

	openedAt := acc.OpenedAt
	duration := f.Timestamp - openedAt
	t := Trade{
		Wallet:      f.Wallet,
		Coin:        f.Coin,
		Side:        acc.Side,
		Size:        matched,
		EntryPrice:  &entry,
		ExitPrice:   f.Price,
		RealizedPnl: f.ClosedPnl,
		Fees:        entryFee + f.Fee,
		OpenedAt:    &openedAt,
		ClosedAt:    f.Timestamp,
		DurationMs:  &duration,
		TradeID:     f.ID,
	}

	if acc.TotalSize <= Epsilon {
		delete(l.positions, key)
	}
	return t, true
}

func standalone(f fill.Fill) Trade {
	return Trade{
		Wallet:      f.Wallet,
		Coin:        f.Coin,
		Side:        f.Direction.Side(),
		Size:        f.Size,
		ExitPrice:   f.Price,
		RealizedPnl: f.ClosedPnl,
		Fees:        f.Fee,
		ClosedAt:    f.Timestamp,
		TradeID:     f.ID,
	}
}
