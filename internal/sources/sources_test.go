package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	hl "github.com/sonirico/go-hyperliquid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utrading/utrading-portfolio/config"
	"github.com/utrading/utrading-portfolio/internal/models"
)

type stubInfo struct {
	fills    map[string][]hl.Fill
	state    *hl.UserState
	fillErr  map[string]error
	stateErr error
	calls    int
}

func (s *stubInfo) UserFillsByTime(_ context.Context, address string, startTime int64, _ *int64) ([]hl.Fill, error) {
	s.calls++
	if err := s.fillErr[address]; err != nil {
		return nil, err
	}
	var out []hl.Fill
	for _, f := range s.fills[address] {
		if f.Time >= startTime {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *stubInfo) UserState(context.Context, string, string) (*hl.UserState, error) {
	if s.stateErr != nil {
		return nil, s.stateErr
	}
	return s.state, nil
}

func TestHyperliquid_Fetch(t *testing.T) {
	entry := "100.5"
	info := &stubInfo{
		fills: map[string][]hl.Fill{
			"0xa": {{Coin: "BTC", Dir: "Open Long", Size: "1", Price: "100", Time: time.Now().UnixMilli(), Tid: 1}},
		},
		state: &hl.UserState{
			AssetPositions: []hl.AssetPosition{{Position: hl.Position{
				Coin: "BTC", Szi: "-0.5", EntryPx: &entry, PositionValue: "50", UnrealizedPnl: "1.5",
				Leverage: hl.Leverage{Type: "cross", Value: 5},
			}}},
			MarginSummary: hl.MarginSummary{AccountValue: "1234.56"},
		},
	}

	src := NewHyperliquidWithInfo(info, []string{"0xa"}, 24*time.Hour)
	batch, err := src.Fetch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "hyperliquid", batch.Source)
	assert.Len(t, batch.Fills["0xa"], 1)
	require.Len(t, batch.Items, 1)

	pos := batch.Items[0].(*models.HlPosition)
	assert.Equal(t, -0.5, pos.Szi)
	require.NotNil(t, pos.EntryPx)
	assert.Equal(t, 100.5, *pos.EntryPx)
	assert.Equal(t, 5, pos.Leverage)
	assert.Equal(t, "1234.56", batch.ValueUSD.String())
	assert.Equal(t, 2, batch.Fetched())
}

func TestHyperliquid_PartialAndTotalFailure(t *testing.T) {
	info := &stubInfo{
		fills:   map[string][]hl.Fill{"0xa": nil},
		fillErr: map[string]error{"0xb": errors.New("timeout")},
		state:   &hl.UserState{},
	}

	batch, err := NewHyperliquidWithInfo(info, []string{"0xa", "0xb"}, time.Hour).Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, batch.Partial, 1)

	_, err = NewHyperliquidWithInfo(info, []string{"0xb"}, time.Hour).Fetch(context.Background())
	assert.Error(t, err)
}

func TestHyperliquid_Paginates(t *testing.T) {
	base := time.Now().Add(-time.Hour).UnixMilli()
	fills := make([]hl.Fill, 0, hlFillsPageSize+10)
	for i := 0; i < hlFillsPageSize+10; i++ {
		fills = append(fills, hl.Fill{Coin: "ETH", Time: base + int64(i), Tid: int64(i)})
	}
	info := &pagedInfo{all: fills}

	src := NewHyperliquidWithInfo(info, []string{"0xa"}, 2*time.Hour)
	got, err := src.fetchFills(context.Background(), "0xa", base)
	require.NoError(t, err)
	assert.Len(t, got, hlFillsPageSize+10)
	assert.Equal(t, 2, info.calls)
}

// pagedInfo 每次最多返回一页
type pagedInfo struct {
	all   []hl.Fill
	calls int
}

func (p *pagedInfo) UserFillsByTime(_ context.Context, _ string, startTime int64, _ *int64) ([]hl.Fill, error) {
	p.calls++
	var out []hl.Fill
	for _, f := range p.all {
		if f.Time >= startTime && len(out) < hlFillsPageSize {
			out = append(out, f)
		}
	}
	return out, nil
}

func (p *pagedInfo) UserState(context.Context, string, string) (*hl.UserState, error) {
	return &hl.UserState{}, nil
}

func polymarketServer(t *testing.T, failing string) *httptest.Server {
	t.Helper()
	bodies := map[string]string{
		"/positions":        `[{"asset":"a1","conditionId":"c1","title":"Will it rain","outcome":"Yes","size":10,"avgPrice":0.4,"curPrice":0.5,"currentValue":5.25,"cashPnl":1}]`,
		"/closed-positions": `[{"asset":"a2","conditionId":"c2","avgPrice":0.3,"totalBought":20,"realizedPnl":4,"timestamp":1700000000}]`,
		"/trades":           `[{"transactionHash":"0xh","asset":"a1","side":"BUY","size":10,"price":0.4,"timestamp":1700000000},{"asset":"no-hash"}]`,
		"/activity":         `[{"transactionHash":"0xh","type":"TRADE","asset":"a1","usdcSize":4,"timestamp":1700000000}]`,
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "0xw", r.URL.Query().Get("user"))
		if r.URL.Path == failing {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if r.URL.Query().Get("offset") != "0" {
			fmt.Fprint(w, `[]`)
			return
		}
		fmt.Fprint(w, bodies[r.URL.Path])
	}))
}

func TestPolymarket_Fetch(t *testing.T) {
	srv := polymarketServer(t, "")
	defer srv.Close()

	src := NewPolymarket(config.Polymarket{DataAPIURL: srv.URL, Wallets: []string{"0xw"}, PageLimit: 50}, time.Second)
	batch, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, batch.Partial)

	counts := map[string]int{}
	for _, item := range batch.Items {
		counts[item.TableName()]++
	}
	assert.Equal(t, map[string]int{
		"polymarket_positions":        1,
		"polymarket_closed_positions": 1,
		"polymarket_trades":           1,
		"polymarket_activity":         1,
	}, counts)
	assert.Equal(t, "5.25", batch.ValueUSD.String())
}

func TestPolymarket_EndpointFailureIsPartial(t *testing.T) {
	srv := polymarketServer(t, "/trades")
	defer srv.Close()

	src := NewPolymarket(config.Polymarket{DataAPIURL: srv.URL, Wallets: []string{"0xw"}, PageLimit: 50}, time.Second)
	batch, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, batch.Partial, 1)
	assert.ErrorIs(t, batch.Partial[0], ErrStatus)
	assert.Len(t, batch.Items, 3)
}

func TestPolymarket_AllFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	src := NewPolymarket(config.Polymarket{DataAPIURL: srv.URL, Wallets: []string{"0xw"}}, time.Second)
	_, err := src.Fetch(context.Background())
	assert.ErrorIs(t, err, ErrStatus)
}

func TestFantasy_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/0xw/holdings", r.URL.Path)
		fmt.Fprint(w, `{"data":{"holdings":[
			{"tokenId":"t1","name":"Player One","shares":"3","price":"1.10"},
			{"tokenId":"t2","name":"Player Two","shares":2,"price":0.25},
			{"name":"missing id"}
		]}}`)
	}))
	defer srv.Close()

	cfg := config.Default().Fantasy
	cfg.HoldingsURL = srv.URL + "/users/{wallet}/holdings"
	cfg.HoldingsPath = "data.holdings"
	cfg.Wallets = []string{"0xw"}

	batch, err := NewFantasy(cfg, time.Second).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, batch.Items, 2)

	h := batch.Items[0].(*models.FantasyHolding)
	assert.Equal(t, "t1", h.TokenID)
	assert.Equal(t, "Player One", h.Name)
	assert.InDelta(t, 3.3, h.Value, 1e-9)
	assert.Equal(t, "3.8", batch.ValueUSD.String())
}

func TestFantasy_BadPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"holdings":{}}`)
	}))
	defer srv.Close()

	cfg := config.Default().Fantasy
	cfg.HoldingsURL = srv.URL + "/{wallet}"
	cfg.Wallets = []string{"0xw"}

	_, err := NewFantasy(cfg, time.Second).Fetch(context.Background())
	assert.Error(t, err)
}
