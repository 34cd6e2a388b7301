package dal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	proxymysql "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/proxy"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/dbresolver"

	"github.com/utrading/utrading-portfolio/config"
	"github.com/utrading/utrading-portfolio/internal/models"
	"github.com/utrading/utrading-portfolio/pkg/logger"
)

// ErrStoreUnavailable 无法连接目标库
var ErrStoreUnavailable = errors.New("store unavailable")

type GormLogger struct{}

func (l GormLogger) Printf(f string, args ...any) {
	log.Printf(f, args...)
}

func (l GormLogger) Print(args ...any) {
	log.Print(args...)
}

var (
	db     *gorm.DB
	dbOnce sync.Once
	dbErr  error
)

// InitDB 初始化全局连接，只执行一次
func InitDB(cfg config.DB) error {
	dbOnce.Do(func() {
		db, dbErr = Open(cfg)
	})
	return dbErr
}

func DB() *gorm.DB {
	return db
}

// registerProxyDialer 注册 SOCKS5 代理拨号器，DSN 中使用 dial(host:port) 作为网络类型
func registerProxyDialer(proxyAddr string) error {
	dialer, err := proxy.SOCKS5("tcp", proxyAddr, nil, &net.Dialer{})
	if err != nil {
		return fmt.Errorf("create proxy dialer failed: %w", err)
	}

	proxymysql.RegisterDialContext("dial", func(ctx context.Context, addr string) (net.Conn, error) {
		if cd, ok := dialer.(proxy.ContextDialer); ok {
			return cd.DialContext(ctx, "tcp", addr)
		}
		return dialer.Dial("tcp", addr)
	})

	return nil
}

func dialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case "mysql":
		return mysql.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}
}

// Open 建立连接并 ping，失败返回 ErrStoreUnavailable
func Open(cfg config.DB) (*gorm.DB, error) {
	if cfg.Driver == "mysql" && cfg.ProxyEnabled {
		if err := registerProxyDialer(cfg.ProxyAddr); err != nil {
			return nil, err
		}
		logger.Infof("mysql proxy enabled: %s", cfg.ProxyAddr)
	}

	newLogger := gormlogger.New(
		GormLogger{}, gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			Colorful:                  false,
			IgnoreRecordNotFoundError: true,
		},
	)

	dial, err := dialector(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	conn, err := gorm.Open(dial, &gorm.Config{
		Logger:         newLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrStoreUnavailable, cfg.Driver, err)
	}

	maxIdleTime := time.Hour
	if cfg.ConnMaxIdleTime > 0 {
		maxIdleTime = time.Duration(cfg.ConnMaxIdleTime) * time.Second
	}

	maxLifetime := 2 * time.Hour
	if cfg.ConnMaxLifetime > 0 {
		maxLifetime = time.Duration(cfg.ConnMaxLifetime) * time.Second
	}

	// 从库只用于读取已同步的 trade_id
	if len(cfg.SlaveAddr) > 0 {
		var replicas []gorm.Dialector
		for _, addr := range cfg.SlaveAddr {
			r, err := dialector(cfg.Driver, addr)
			if err != nil {
				return nil, err
			}
			replicas = append(replicas, r)
		}
		plugin := dbresolver.Register(dbresolver.Config{
			Replicas:          replicas,
			Policy:            dbresolver.RandomPolicy{},
			TraceResolverMode: true,
		}).
			SetConnMaxIdleTime(maxIdleTime).
			SetConnMaxLifetime(maxLifetime).
			SetMaxIdleConns(cfg.MaxIdleConnections).
			SetMaxOpenConns(cfg.MaxOpenConnections)
		if err = conn.Use(plugin); err != nil {
			return nil, fmt.Errorf("register dbresolver failed: %w", err)
		}
		logger.Infof("%d replica(s) configured", len(cfg.SlaveAddr))
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB failed: %w", err)
	}

	sqlDB.SetMaxIdleConns(cfg.MaxIdleConnections)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConnections)
	sqlDB.SetConnMaxIdleTime(maxIdleTime)
	sqlDB.SetConnMaxLifetime(maxLifetime)

	if err = sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("%w: ping %s: %v", ErrStoreUnavailable, cfg.Driver, err)
	}

	logger.Info().
		Str("driver", cfg.Driver).
		Int("maxIdle", cfg.MaxIdleConnections).
		Int("maxOpen", cfg.MaxOpenConnections).
		Dur("maxIdleTime", maxIdleTime).
		Dur("maxLifetime", maxLifetime).
		Msg("db connected")

	return conn, nil
}

// Ping 检查连接是否可用
func Ping(ctx context.Context, conn *gorm.DB) error {
	sqlDB, err := conn.DB()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err = sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func Close() {
	if db == nil {
		return
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Error().Err(err).Msg("get sql.DB failed")
		return
	}
	if err = sqlDB.Close(); err != nil {
		logger.Error().Err(err).Msg("close db failed")
	}

	logger.Infof("db closed.")
}

// Models 需要迁移或生成查询代码的模型
func Models() []any {
	return []any{
		&models.HlTrade{},
		&models.HlPosition{},
		&models.PolymarketPosition{},
		&models.PolymarketClosedPosition{},
		&models.PolymarketTrade{},
		&models.PolymarketActivity{},
		&models.FantasyHolding{},
		&models.SyncRun{},
		&models.PortfolioSnapshot{},
	}
}

// AutoMigrate 自动迁移表结构
// 单表失败时记录警告并继续迁移其余表，返回所有失败的合并错误
func AutoMigrate(conn *gorm.DB) error {
	if conn == nil {
		return ErrStoreUnavailable
	}

	var errs []error
	for _, model := range Models() {
		table := getTableName(model)
		if err := conn.AutoMigrate(model); err != nil {
			log.Warn().Err(err).Str("table", table).Msg("auto migrate failed, continuing anyway")
			errs = append(errs, fmt.Errorf("migrate %s: %w", table, err))
			continue
		}
		log.Info().Str("table", table).Msg("auto migrate success")
	}
	return errors.Join(errs...)
}

// getTableName 获取模型的表名
func getTableName(model any) string {
	if t, ok := model.(interface{ TableName() string }); ok {
		return t.TableName()
	}
	return "unknown"
}
