package schema

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"gorm.io/gorm"

	"github.com/utrading/utrading-portfolio/config"
	"github.com/utrading/utrading-portfolio/pkg/logger"
)

// Prober 通过零行查询探测目标表的可选列
// 结果按表名缓存，探测失败的列视为不存在
type Prober struct {
	db      *gorm.DB
	version int
	cache   *cache.Cache
}

func NewProber(db *gorm.DB, version int, ttl time.Duration) *Prober {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Prober{
		db:      db,
		version: version,
		cache:   cache.New(ttl, 2*ttl),
	}
}

// Probe 返回 table 的能力声明，不返回错误
func (p *Prober) Probe(ctx context.Context, table string) Capabilities {
	if v, ok := p.cache.Get(table); ok {
		return v.(Capabilities)
	}

	supported := make(map[string]bool, len(OptionalColumns))
	for _, col := range OptionalColumns {
		supported[col] = p.hasColumn(ctx, table, col)
	}
	caps := FromMap(p.version, supported)

	logger.Info().
		Str("table", table).
		Interface("columns", supported).
		Msg("schema probed")

	p.cache.SetDefault(table, caps)
	return caps
}

// Invalidate 清除 table 的探测缓存
func (p *Prober) Invalidate(table string) {
	p.cache.Delete(table)
}

func (p *Prober) hasColumn(ctx context.Context, table, col string) bool {
	sql := fmt.Sprintf("SELECT %s FROM %s LIMIT 0",
		p.db.Statement.Quote(col), p.db.Statement.Quote(table))

	rows, err := p.db.WithContext(ctx).Raw(sql).Rows()
	if err != nil {
		logger.Debug().Err(err).Str("table", table).Str("column", col).Msg("column probe failed")
		return false
	}
	_ = rows.Close()
	return true
}

// Resolver 按配置返回能力声明：static 直接使用配置，probe 走探测
type Resolver struct {
	static Capabilities
	prober *Prober
	table  string
}

func NewResolver(cfg config.Schema, db *gorm.DB) *Resolver {
	r := &Resolver{
		static: FromConfig(cfg),
		table:  cfg.Table,
	}
	if cfg.Mode == "probe" && db != nil {
		r.prober = NewProber(db, cfg.Version, cfg.ProbeTTL)
	}
	return r
}

func (r *Resolver) Table() string {
	return r.table
}

func (r *Resolver) Capabilities(ctx context.Context) Capabilities {
	if r.prober == nil {
		return r.static
	}
	return r.prober.Probe(ctx, r.table)
}
