package fill

import "strings"

// Direction 成交在仓位上的动作
type Direction int

const (
	DirUnknown Direction = iota
	DirOpenLong
	DirCloseLong
	DirOpenShort
	DirCloseShort
)

// Side 仓位方向
type Side string

const (
	SideLong  Side = "Long"
	SideShort Side = "Short"
)

// 交易所原始方向标签
const (
	RawOpenLong    = "Open Long"
	RawOpenShort   = "Open Short"
	RawCloseLong   = "Close Long"
	RawCloseShort  = "Close Short"
	RawLongToShort = "Long > Short"
	RawShortToLong = "Short > Long"
)

// ParseDirection 通过子串判断 Open/Close 与 Long/Short
func ParseDirection(raw string) Direction {
	isOpen := strings.Contains(raw, "Open")
	isClose := strings.Contains(raw, "Close")
	isLong := strings.Contains(raw, "Long")
	isShort := strings.Contains(raw, "Short")

	switch {
	case isOpen && isLong:
		return DirOpenLong
	case isOpen && isShort:
		return DirOpenShort
	case isClose && isLong:
		return DirCloseLong
	case isClose && isShort:
		return DirCloseShort
	default:
		return DirUnknown
	}
}

func (d Direction) IsOpen() bool {
	return d == DirOpenLong || d == DirOpenShort
}

func (d Direction) IsClose() bool {
	return d == DirCloseLong || d == DirCloseShort
}

// Side 返回动作作用的仓位方向
func (d Direction) Side() Side {
	if d == DirOpenLong || d == DirCloseLong {
		return SideLong
	}
	return SideShort
}

func (d Direction) String() string {
	switch d {
	case DirOpenLong:
		return RawOpenLong
	case DirCloseLong:
		return RawCloseLong
	case DirOpenShort:
		return RawOpenShort
	case DirCloseShort:
		return RawCloseShort
	default:
		return "Unknown"
	}
}

// Fill 归一化后的单笔成交
type Fill struct {
	Wallet    string
	Coin      string
	Direction Direction
	Size      float64 // 绝对数量，> 0
	Price     float64
	Fee       float64
	ClosedPnl float64 // 交易所给出的已实现盈亏
	Timestamp int64   // ms
	ID        string
}

// Key 仓位累加器的键 coin-side
func (f Fill) Key() string {
	return f.Coin + "-" + string(f.Direction.Side())
}
