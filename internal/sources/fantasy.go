package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/utrading/utrading-portfolio/config"
	"github.com/utrading/utrading-portfolio/internal/models"
	"github.com/utrading/utrading-portfolio/pkg/logger"
)

// Fantasy 体育 token 平台持仓，响应结构由 gjson 路径配置
type Fantasy struct {
	cfg    config.Fantasy
	client *http.Client
	now    func() time.Time
}

func NewFantasy(cfg config.Fantasy, timeout time.Duration) *Fantasy {
	return &Fantasy{
		cfg:    cfg,
		client: newHTTPClient(timeout),
		now:    time.Now,
	}
}

func (f *Fantasy) Name() string {
	return "fantasy"
}

func (f *Fantasy) Fetch(ctx context.Context) (*Batch, error) {
	batch := newBatch(f.Name())

	var failed []error
	for _, wallet := range f.cfg.Wallets {
		if err := f.fetchWallet(ctx, wallet, batch); err != nil {
			logger.Warn().Err(err).Str("wallet", wallet).Msg("fetch fantasy holdings failed")
			failed = append(failed, fmt.Errorf("%s: %w", wallet, err))
		}
	}

	if len(f.cfg.Wallets) > 0 && len(failed) == len(f.cfg.Wallets) {
		return nil, errors.Join(failed...)
	}
	batch.Partial = failed
	return batch, nil
}

func (f *Fantasy) fetchWallet(ctx context.Context, wallet string, batch *Batch) error {
	u := strings.ReplaceAll(f.cfg.HoldingsURL, "{wallet}", url.PathEscape(wallet))
	body, err := getJSON(ctx, f.client, u)
	if err != nil {
		return err
	}
	if !gjson.ValidBytes(body) {
		return errors.New("invalid json")
	}

	holdings := gjson.GetBytes(body, f.cfg.HoldingsPath)
	if !holdings.IsArray() {
		return fmt.Errorf("path %q is not an array", f.cfg.HoldingsPath)
	}

	now := f.now()
	for _, h := range holdings.Array() {
		id := h.Get(f.cfg.IDField).String()
		if id == "" {
			continue
		}
		shares := dec(h.Get(f.cfg.SharesField).String())
		price := dec(h.Get(f.cfg.PriceField).String())
		value := shares.Mul(price)

		batch.Items = append(batch.Items, &models.FantasyHolding{
			Wallet:    wallet,
			TokenID:   id,
			Name:      h.Get(f.cfg.NameField).String(),
			Shares:    shares.InexactFloat64(),
			Price:     price.InexactFloat64(),
			Value:     value.InexactFloat64(),
			UpdatedAt: now,
		})
		batch.ValueUSD = batch.ValueUSD.Add(value)
	}
	return nil
}
