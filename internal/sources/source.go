package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	hl "github.com/sonirico/go-hyperliquid"

	"github.com/utrading/utrading-portfolio/internal/processor"
)

// Source 上游数据源
type Source interface {
	Name() string
	Fetch(ctx context.Context) (*Batch, error)
}

// Batch 一个数据源一次拉取的结果
type Batch struct {
	Source   string
	Fills    map[string][]hl.Fill  // wallet -> 原始成交，仅 hyperliquid
	Items    []processor.BatchItem // 镜像表数据
	ValueUSD decimal.Decimal
	Partial  []error // 部分子请求失败
}

func newBatch(source string) *Batch {
	return &Batch{
		Source:   source,
		Fills:    make(map[string][]hl.Fill),
		ValueUSD: decimal.Zero,
	}
}

// Fetched 拉取到的记录数
func (b *Batch) Fetched() int {
	n := len(b.Items)
	for _, fills := range b.Fills {
		n += len(fills)
	}
	return n
}

// ErrStatus 上游返回非 2xx
var ErrStatus = errors.New("unexpected http status")

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

func getJSON(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: GET %s: %d", ErrStatus, url, resp.StatusCode)
	}
	return body, nil
}

// dec 解析十进制字符串，失败返回 0
func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func decFloat(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}
