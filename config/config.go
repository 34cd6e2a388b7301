package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/spf13/cast"

	"github.com/utrading/utrading-portfolio/pkg/logger"
)

type Sync struct {
	Interval         time.Duration `toml:"interval"`          // watch 模式下的定时同步间隔
	Debounce         time.Duration `toml:"debounce"`          // ws 触发同步的防抖窗口
	FetchTimeout     time.Duration `toml:"fetch_timeout"`     // 单个数据源拉取超时
	FetchConcurrency int           `toml:"fetch_concurrency"` // 数据源并发数
	Lookback         time.Duration `toml:"lookback"`          // 成交回看窗口
	Retention        time.Duration `toml:"retention"`         // 同步记录保留时长
	// SplitFlips 按 startPosition 把 "Long > Short" 反手成交拆成平仓和开仓两部分。
	// 开启后，之后的平仓会与拆出的开仓配对，不再生成独立平仓记录，默认关闭
	SplitFlips       bool          `toml:"split_flips"`
	BatchSize        int           `toml:"batch_size"`
	FlushInterval    time.Duration `toml:"flush_interval"`
	QueueSize        int           `toml:"queue_size"`
}

type Hyperliquid struct {
	Enabled bool     `toml:"enabled"`
	APIURL  string   `toml:"api_url"`
	WSURL   string   `toml:"ws_url"`
	Wallets []string `toml:"wallets"`
}

type Polymarket struct {
	Enabled    bool     `toml:"enabled"`
	DataAPIURL string   `toml:"data_api_url"`
	Wallets    []string `toml:"wallets"`
	PageLimit  int      `toml:"page_limit"`
}

// Fantasy 体育 token 平台，接口形状通过 gjson 路径配置
type Fantasy struct {
	Enabled      bool     `toml:"enabled"`
	HoldingsURL  string   `toml:"holdings_url"` // 包含 {wallet} 占位符
	Wallets      []string `toml:"wallets"`
	HoldingsPath string   `toml:"holdings_path"`
	IDField      string   `toml:"id_field"`
	NameField    string   `toml:"name_field"`
	SharesField  string   `toml:"shares_field"`
	PriceField   string   `toml:"price_field"`
}

type DB struct {
	Driver             string   `toml:"driver"` // mysql / sqlite
	DSN                string   `toml:"dsn"`
	SlaveAddr          []string `toml:"slave_addr"`
	MaxIdleConnections int      `toml:"max_idle_connections"`
	MaxOpenConnections int      `toml:"max_open_connections"`
	ConnMaxLifetime    int      `toml:"conn_max_lifetime"`  // 秒
	ConnMaxIdleTime    int      `toml:"conn_max_idle_time"` // 秒
	ProxyEnabled       bool     `toml:"proxy_enabled"`
	ProxyAddr          string   `toml:"proxy_addr"`
	AutoMigrate        bool     `toml:"auto_migrate"`
}

// Schema 目标表可选列的能力声明
type Schema struct {
	Mode        string        `toml:"mode"` // static / probe
	Version     int           `toml:"version"`
	Table       string        `toml:"table"`
	ProbeTTL    time.Duration `toml:"probe_ttl"`
	EntryPrice  bool          `toml:"entry_price"`
	ExitPrice   bool          `toml:"exit_price"`
	Pnl         bool          `toml:"pnl"`
	RealizedPnl bool          `toml:"realized_pnl"`
	Fees        bool          `toml:"fees"`
	OpenedAt    bool          `toml:"opened_at"`
	ClosedAt    bool          `toml:"closed_at"`
	DurationMs  bool          `toml:"duration_ms"`
}

type NATS struct {
	Endpoint string `toml:"endpoint"`
}

type Metrics struct {
	PushgatewayURL   string `toml:"pushgateway_url"`
	Job              string `toml:"job"`
	HealthServerAddr string `toml:"health_server_addr"`
}

type Logger struct {
	Level      string `toml:"level"`
	MaxSize    int    `toml:"max_size"`
	MaxBackups int    `toml:"max_backups"`
	MaxAge     int    `toml:"max_age"`
	Compress   bool   `toml:"compress"`
	Console    bool   `toml:"console"`
	JSON       bool   `toml:"json"`
	InfoFile   string `toml:"info_file"`
	ErrorFile  string `toml:"error_file"`
}

type Config struct {
	Sync        Sync        `toml:"sync"`
	Hyperliquid Hyperliquid `toml:"hyperliquid"`
	Polymarket  Polymarket  `toml:"polymarket"`
	Fantasy     Fantasy     `toml:"fantasy"`
	DB          DB          `toml:"db"`
	Schema      Schema      `toml:"schema"`
	NATS        NATS        `toml:"nats"`
	Metrics     Metrics     `toml:"metrics"`
	Logger      Logger      `toml:"log"`
}

var (
	cfg         *Config
	cfgPath     string
	cfgLock     sync.RWMutex
	lastModTime time.Time
	stopChan    chan struct{}
)

func Default() *Config {
	return &Config{
		Sync: Sync{
			Interval:         5 * time.Minute,
			Debounce:         5 * time.Second,
			FetchTimeout:     30 * time.Second,
			FetchConcurrency: 4,
			Lookback:         90 * 24 * time.Hour,
			Retention:        30 * 24 * time.Hour,
			SplitFlips:       false,
			BatchSize:        200,
			FlushInterval:    time.Second,
			QueueSize:        20000,
		},
		Hyperliquid: Hyperliquid{
			Enabled: true,
			APIURL:  "https://api.hyperliquid.xyz",
			WSURL:   "wss://api.hyperliquid.xyz/ws",
		},
		Polymarket: Polymarket{
			Enabled:    true,
			DataAPIURL: "https://data-api.polymarket.com",
			PageLimit:  500,
		},
		Fantasy: Fantasy{
			Enabled:      false,
			HoldingsPath: "holdings",
			IDField:      "tokenId",
			NameField:    "name",
			SharesField:  "shares",
			PriceField:   "price",
		},
		DB: DB{
			Driver:             "mysql",
			DSN:                "root:password@tcp(localhost:3306)/portfolio?charset=utf8mb4&parseTime=True&loc=UTC",
			SlaveAddr:          []string{},
			MaxIdleConnections: 4,
			MaxOpenConnections: 16,
			ConnMaxLifetime:    7200,
			ConnMaxIdleTime:    3600,
			ProxyAddr:          "127.0.0.1:7890",
		},
		Schema: Schema{
			Mode:        "static",
			Version:     2,
			Table:       "hl_trades",
			ProbeTTL:    10 * time.Minute,
			EntryPrice:  true,
			ExitPrice:   true,
			Pnl:         true,
			RealizedPnl: true,
			Fees:        true,
			OpenedAt:    true,
			ClosedAt:    true,
			DurationMs:  true,
		},
		Metrics: Metrics{
			Job:              "portfolio_sync",
			HealthServerAddr: "0.0.0.0:16810",
		},
		Logger: Logger{
			Level:      "info",
			MaxSize:    10,
			MaxBackups: 30,
			MaxAge:     7,
			Console:    true,
			InfoFile:   "logs/info.log",
			ErrorFile:  "logs/err.log",
		},
	}
}

// LoadEnv 加载 .env 文件（不存在时忽略）
func LoadEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

// Parse 解析配置文件并应用环境变量覆盖，不修改全局配置
func Parse(path string) (*Config, error) {
	c := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, c); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}

	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("PORTFOLIO_DB_DSN"); v != "" {
		c.DB.DSN = v
	}
	if v := os.Getenv("PORTFOLIO_DB_DRIVER"); v != "" {
		c.DB.Driver = v
	}
	if v := os.Getenv("PORTFOLIO_HL_WALLETS"); v != "" {
		c.Hyperliquid.Wallets = splitList(v)
	}
	if v := os.Getenv("PORTFOLIO_PM_WALLETS"); v != "" {
		c.Polymarket.Wallets = splitList(v)
	}
	if v := os.Getenv("PORTFOLIO_FANTASY_WALLETS"); v != "" {
		c.Fantasy.Wallets = splitList(v)
	}
	if v := os.Getenv("PORTFOLIO_FETCH_CONCURRENCY"); v != "" {
		n, err := cast.ToIntE(v)
		if err != nil {
			return fmt.Errorf("PORTFOLIO_FETCH_CONCURRENCY: %w", err)
		}
		c.Sync.FetchConcurrency = n
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate 校验配置
func (c *Config) Validate() error {
	switch c.DB.Driver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("db.driver must be mysql or sqlite, got %q", c.DB.Driver)
	}
	if c.DB.DSN == "" {
		return errors.New("db.dsn is required")
	}
	switch c.Schema.Mode {
	case "static", "probe":
	default:
		return fmt.Errorf("schema.mode must be static or probe, got %q", c.Schema.Mode)
	}
	if c.Sync.FetchConcurrency <= 0 {
		return errors.New("sync.fetch_concurrency must be positive")
	}
	if c.Sync.Interval <= 0 {
		return errors.New("sync.interval must be positive")
	}
	if c.Sync.FetchTimeout <= 0 {
		return errors.New("sync.fetch_timeout must be positive")
	}
	if c.Fantasy.Enabled && !strings.Contains(c.Fantasy.HoldingsURL, "{wallet}") {
		return errors.New("fantasy.holdings_url must contain {wallet}")
	}
	return nil
}

func Load(path string) error {
	c, err := Parse(path)
	if err != nil {
		return err
	}

	var modTime time.Time
	if path != "" {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		modTime = info.ModTime()
	}

	cfgLock.Lock()
	defer cfgLock.Unlock()
	cfg = c
	cfgPath = path
	lastModTime = modTime

	return nil
}

func Get() *Config {
	cfgLock.RLock()
	defer cfgLock.RUnlock()
	return cfg
}

// Watch 按 interval 检查配置文件，修改后重新加载
func Watch(interval time.Duration) {
	stopChan = make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				reloadIfNeeded()
			case <-stopChan:
				return
			}
		}
	}()
}

// Stop 停止配置重载
func Stop() {
	if stopChan != nil {
		close(stopChan)
		stopChan = nil
	}
}

func reloadIfNeeded() {
	cfgLock.RLock()
	path := cfgPath
	lastMod := lastModTime
	cfgLock.RUnlock()

	if path == "" {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		logger.Error().Err(err).Msg("config stat failed")
		return
	}

	if info.ModTime().After(lastMod) {
		if err = Load(path); err != nil {
			logger.Error().Err(err).Msg("config reload failed")
		} else {
			logger.Info().Str("path", path).Msg("config reloaded")
		}
	}
}
