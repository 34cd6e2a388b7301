package main

import (
	"flag"

	"github.com/utrading/utrading-portfolio/config"
	"github.com/utrading/utrading-portfolio/internal/dal"
	"github.com/utrading/utrading-portfolio/pkg/logger"
)

// 生成 internal/dal/query 下的 gorm-gen 查询代码
func main() {
	var configFile, envFile, outPath string
	flag.StringVar(&configFile, "config", "", "config file path")
	flag.StringVar(&envFile, "env", ".env", "env file path")
	flag.StringVar(&outPath, "out", "internal/dal/query", "output directory")
	flag.Parse()

	if err := config.LoadEnv(envFile); err != nil {
		panic(err)
	}
	cfg, err := config.Parse(configFile)
	if err != nil {
		panic(err)
	}

	conn, err := dal.Open(cfg.DB)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db failed")
	}

	dal.GenExecute(outPath, conn)
	logger.Info().Str("out", outPath).Msg("gorm gen done")
}
