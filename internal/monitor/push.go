package monitor

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/utrading/utrading-portfolio/pkg/logger"
)

// Push 单次运行结束后推送到 Pushgateway，url 为空时跳过
func Push(ctx context.Context, url, job string) error {
	if url == "" {
		return nil
	}

	err := push.New(url, job).
		Gatherer(prometheus.DefaultGatherer).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}

	logger.Debug().Str("url", url).Str("job", job).Msg("metrics pushed")
	return nil
}
