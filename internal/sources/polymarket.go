package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/utrading/utrading-portfolio/config"
	"github.com/utrading/utrading-portfolio/internal/models"
	"github.com/utrading/utrading-portfolio/internal/processor"
	"github.com/utrading/utrading-portfolio/pkg/logger"
)

const (
	pmPositions       = "positions"
	pmClosedPositions = "closed-positions"
	pmTrades          = "trades"
	pmActivity        = "activity"
)

// Polymarket 预测市场 data-api
// 四个端点相互独立，单个端点失败只影响该端点
type Polymarket struct {
	baseURL   string
	wallets   []string
	pageLimit int
	maxPages  int
	client    *http.Client
	now       func() time.Time
}

func NewPolymarket(cfg config.Polymarket, timeout time.Duration) *Polymarket {
	limit := cfg.PageLimit
	if limit <= 0 {
		limit = 500
	}
	return &Polymarket{
		baseURL:   strings.TrimRight(cfg.DataAPIURL, "/"),
		wallets:   cfg.Wallets,
		pageLimit: limit,
		maxPages:  20,
		client:    newHTTPClient(timeout),
		now:       time.Now,
	}
}

func (p *Polymarket) Name() string {
	return "polymarket"
}

type pmResult struct {
	mu    sync.Mutex
	batch *Batch
	fails int
	total int
}

func (r *pmResult) add(items []processor.BatchItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batch.Items = append(r.batch.Items, items...)
}

func (r *pmResult) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fails++
	r.batch.Partial = append(r.batch.Partial, err)
}

func (p *Polymarket) Fetch(ctx context.Context) (*Batch, error) {
	res := &pmResult{batch: newBatch(p.Name())}

	var g errgroup.Group
	for _, wallet := range p.wallets {
		for _, endpoint := range []string{pmPositions, pmClosedPositions, pmTrades, pmActivity} {
			res.total++
			g.Go(func() error {
				items, err := p.fetchEndpoint(ctx, wallet, endpoint)
				if err != nil {
					logger.Warn().Err(err).Str("wallet", wallet).Str("endpoint", endpoint).Msg("fetch polymarket failed")
					res.fail(fmt.Errorf("%s %s: %w", wallet, endpoint, err))
					return nil
				}
				res.add(items)
				return nil
			})
		}
	}
	_ = g.Wait()

	if res.total > 0 && res.fails == res.total {
		return nil, fmt.Errorf("all polymarket requests failed: %w", res.batch.Partial[0])
	}

	for _, item := range res.batch.Items {
		if pos, ok := item.(*models.PolymarketPosition); ok {
			res.batch.ValueUSD = res.batch.ValueUSD.Add(decFloat(pos.CurrentValue))
		}
	}
	return res.batch, nil
}

// fetchEndpoint 按 offset 翻页直到不足一页
func (p *Polymarket) fetchEndpoint(ctx context.Context, wallet, endpoint string) ([]processor.BatchItem, error) {
	var items []processor.BatchItem
	for page := 0; page < p.maxPages; page++ {
		q := url.Values{}
		q.Set("user", wallet)
		q.Set("limit", fmt.Sprint(p.pageLimit))
		q.Set("offset", fmt.Sprint(page*p.pageLimit))

		body, err := getJSON(ctx, p.client, p.baseURL+"/"+endpoint+"?"+q.Encode())
		if err != nil {
			return nil, err
		}
		if !gjson.ValidBytes(body) {
			return nil, fmt.Errorf("invalid json from %s", endpoint)
		}

		arr := gjson.ParseBytes(body).Array()
		for _, v := range arr {
			if item := p.parse(endpoint, wallet, v); item != nil {
				items = append(items, item)
			}
		}
		if len(arr) < p.pageLimit {
			break
		}
	}
	return items, nil
}

func (p *Polymarket) parse(endpoint, wallet string, v gjson.Result) processor.BatchItem {
	now := p.now()
	switch endpoint {
	case pmPositions:
		asset := v.Get("asset").String()
		if asset == "" {
			return nil
		}
		return &models.PolymarketPosition{
			Wallet:       wallet,
			Asset:        asset,
			ConditionID:  v.Get("conditionId").String(),
			Title:        v.Get("title").String(),
			Slug:         v.Get("slug").String(),
			Outcome:      v.Get("outcome").String(),
			Size:         v.Get("size").Float(),
			AvgPrice:     v.Get("avgPrice").Float(),
			CurPrice:     v.Get("curPrice").Float(),
			InitialValue: v.Get("initialValue").Float(),
			CurrentValue: v.Get("currentValue").Float(),
			CashPnl:      v.Get("cashPnl").Float(),
			RealizedPnl:  v.Get("realizedPnl").Float(),
			EndDate:      v.Get("endDate").String(),
			UpdatedAt:    now,
		}
	case pmClosedPositions:
		asset := v.Get("asset").String()
		if asset == "" {
			return nil
		}
		return &models.PolymarketClosedPosition{
			Wallet:      wallet,
			Asset:       asset,
			ConditionID: v.Get("conditionId").String(),
			Title:       v.Get("title").String(),
			Outcome:     v.Get("outcome").String(),
			AvgPrice:    v.Get("avgPrice").Float(),
			TotalBought: v.Get("totalBought").Float(),
			RealizedPnl: v.Get("realizedPnl").Float(),
			CurPrice:    v.Get("curPrice").Float(),
			Timestamp:   v.Get("timestamp").Int(),
			UpdatedAt:   now,
		}
	case pmTrades:
		hash := v.Get("transactionHash").String()
		if hash == "" {
			return nil
		}
		return &models.PolymarketTrade{
			Wallet:          wallet,
			TransactionHash: hash,
			Asset:           v.Get("asset").String(),
			Side:            v.Get("side").String(),
			ConditionID:     v.Get("conditionId").String(),
			Title:           v.Get("title").String(),
			Outcome:         v.Get("outcome").String(),
			Size:            v.Get("size").Float(),
			Price:           v.Get("price").Float(),
			Timestamp:       v.Get("timestamp").Int(),
		}
	case pmActivity:
		hash := v.Get("transactionHash").String()
		if hash == "" {
			return nil
		}
		return &models.PolymarketActivity{
			Wallet:          wallet,
			TransactionHash: hash,
			Type:            v.Get("type").String(),
			Asset:           v.Get("asset").String(),
			ConditionID:     v.Get("conditionId").String(),
			Title:           v.Get("title").String(),
			Side:            v.Get("side").String(),
			Size:            v.Get("size").Float(),
			UsdcSize:        v.Get("usdcSize").Float(),
			Price:           v.Get("price").Float(),
			Timestamp:       v.Get("timestamp").Int(),
		}
	}
	return nil
}
