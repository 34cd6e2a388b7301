package fill

import (
	"testing"

	hl "github.com/sonirico/go-hyperliquid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawFill(tid int64, dir, sz, px string) hl.Fill {
	return hl.Fill{
		Coin:      "BTC",
		Dir:       dir,
		Size:      sz,
		Price:     px,
		Fee:       "0.1",
		ClosedPnl: "0",
		Time:      1000 + tid,
		Tid:       tid,
	}
}

func TestParseDirection(t *testing.T) {
	cases := map[string]Direction{
		"Open Long":    DirOpenLong,
		"Open Short":   DirOpenShort,
		"Close Long":   DirCloseLong,
		"Close Short":  DirCloseShort,
		"Buy":          DirUnknown,
		"Sell":         DirUnknown,
		"Long > Short": DirUnknown,
		"":             DirUnknown,
	}
	for raw, want := range cases {
		assert.Equal(t, want, ParseDirection(raw), raw)
	}

	assert.Equal(t, SideLong, DirCloseLong.Side())
	assert.Equal(t, SideShort, DirOpenShort.Side())
	assert.True(t, DirOpenShort.IsOpen())
	assert.True(t, DirCloseLong.IsClose())
}

func TestNormalize_ParsesDecimalsOnce(t *testing.T) {
	raw := rawFill(42, "Close Long", "1.5", "110.25")
	raw.ClosedPnl = "15.375"

	fills, stats := NewNormalizer(true).Normalize("0xabc", []hl.Fill{raw})
	require.Len(t, fills, 1)

	f := fills[0]
	assert.Equal(t, "0xabc", f.Wallet)
	assert.Equal(t, "BTC", f.Coin)
	assert.Equal(t, DirCloseLong, f.Direction)
	assert.Equal(t, 1.5, f.Size)
	assert.Equal(t, 110.25, f.Price)
	assert.Equal(t, 0.1, f.Fee)
	assert.Equal(t, 15.375, f.ClosedPnl)
	assert.Equal(t, int64(1042), f.Timestamp)
	assert.Equal(t, "42", f.ID)
	assert.Equal(t, "BTC-Long", f.Key())
	assert.Equal(t, Stats{Total: 1, Normalized: 1}, stats)
}

func TestNormalize_DropsMalformedWithoutAborting(t *testing.T) {
	missingSize := rawFill(1, "Open Long", "", "100")
	badPrice := rawFill(2, "Open Long", "1", "abc")
	zeroSize := rawFill(3, "Open Long", "0", "100")
	badFee := rawFill(4, "Open Long", "1", "100")
	badFee.Fee = "n/a"
	good := rawFill(5, "Open Short", "2", "100")
	emptyFee := rawFill(6, "Close Short", "2", "90")
	emptyFee.Fee = ""
	emptyFee.ClosedPnl = ""

	fills, stats := NewNormalizer(true).Normalize("w", []hl.Fill{missingSize, badPrice, zeroSize, badFee, good, emptyFee})

	require.Len(t, fills, 2)
	assert.Equal(t, "5", fills[0].ID)
	assert.Equal(t, "6", fills[1].ID)
	assert.Equal(t, 0.0, fills[1].Fee)
	assert.Equal(t, 0.0, fills[1].ClosedPnl)
	assert.Equal(t, Stats{Total: 6, Normalized: 2, Dropped: 4}, stats)
}

func TestNormalize_SkipsSpotDirections(t *testing.T) {
	fills, stats := NewNormalizer(true).Normalize("w", []hl.Fill{
		rawFill(1, "Buy", "1", "1"),
		rawFill(2, "Sell", "1", "1"),
	})
	assert.Empty(t, fills)
	assert.Equal(t, 2, stats.Skipped)
	assert.Equal(t, 0, stats.Dropped)
}

func TestNormalize_OutputKeepsInputOrder(t *testing.T) {
	a := rawFill(1, "Open Long", "1", "100")
	a.Time = 50
	b := rawFill(2, "Open Long", "1", "100")
	b.Time = 10

	fills, _ := NewNormalizer(true).Normalize("w", []hl.Fill{a, b})
	require.Len(t, fills, 2)
	assert.Equal(t, "1", fills[0].ID)
	assert.Equal(t, "2", fills[1].ID)
}

func TestNormalize_SplitsReversedFill(t *testing.T) {
	flip := rawFill(9, "Long > Short", "3", "200")
	flip.StartPosition = "1"
	flip.Fee = "0.3"
	flip.ClosedPnl = "12"

	fills, stats := NewNormalizer(true).Normalize("w", []hl.Fill{flip})
	require.Len(t, fills, 2)

	closePart, openPart := fills[0], fills[1]
	assert.Equal(t, DirCloseLong, closePart.Direction)
	assert.Equal(t, 1.0, closePart.Size)
	assert.InDelta(t, 0.1, closePart.Fee, 1e-12)
	assert.Equal(t, 12.0, closePart.ClosedPnl)
	assert.Equal(t, "9", closePart.ID)

	assert.Equal(t, DirOpenShort, openPart.Direction)
	assert.Equal(t, 2.0, openPart.Size)
	assert.InDelta(t, 0.2, openPart.Fee, 1e-12)
	assert.Equal(t, 0.0, openPart.ClosedPnl)
	assert.Equal(t, "9-open", openPart.ID)

	assert.Equal(t, Stats{Total: 1, Normalized: 2}, stats)
}

func TestNormalize_ShortToLongFullyClosingPart(t *testing.T) {
	flip := rawFill(7, "Short > Long", "2", "50")
	flip.StartPosition = "-2"

	fills, _ := NewNormalizer(true).Normalize("w", []hl.Fill{flip})
	require.Len(t, fills, 1)
	assert.Equal(t, DirCloseShort, fills[0].Direction)
	assert.Equal(t, 2.0, fills[0].Size)
}

func TestNormalize_ReversedFillWithoutSplit(t *testing.T) {
	flip := rawFill(9, "Long > Short", "3", "200")
	flip.StartPosition = "1"

	fills, stats := NewNormalizer(false).Normalize("w", []hl.Fill{flip})
	assert.Empty(t, fills)
	assert.Equal(t, 1, stats.Skipped)
}

func TestNormalize_ReversedFillMissingStartPosition(t *testing.T) {
	flip := rawFill(9, "Long > Short", "3", "200")

	fills, stats := NewNormalizer(true).Normalize("w", []hl.Fill{flip})
	assert.Empty(t, fills)
	assert.Equal(t, 1, stats.Dropped)
}
