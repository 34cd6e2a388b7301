package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// TimeFormat 控制台与文件的时间格式
var TimeFormat = "2006-01-02 15:04:05.000"

var (
	logMu   sync.Mutex
	writers []*lumberjack.Logger
)

// initLogger 根据配置替换全局 logger
func initLogger(config Config) error {
	if len(config.LevelFiles) == 0 && !config.Console {
		config.LevelFiles = LevelFiles{{Level: INFO, Path: "logs/info.log"}}
	}

	for _, p := range config.LevelFiles.GetPaths() {
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return fmt.Errorf("create log dir for %s: %w", p, err)
		}
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.SetGlobalLevel(parseLevel(config.Level))

	var configured uint8
	for _, entry := range config.LevelFiles {
		configured |= 1 << parseLevel(entry.Level)
	}

	outputs := make([]io.Writer, 0, len(config.LevelFiles)+1)
	rotating := make([]*lumberjack.Logger, 0, len(config.LevelFiles))
	for _, entry := range config.LevelFiles {
		lj := &lumberjack.Logger{
			Filename:   entry.Path,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		}
		rotating = append(rotating, lj)

		var out io.Writer = lj
		if !config.JSON {
			out = &zerolog.ConsoleWriter{Out: lj, TimeFormat: TimeFormat, NoColor: true}
		}
		outputs = append(outputs, &levelFilterWriter{
			level:      parseLevel(entry.Level),
			configured: configured,
			Writer:     out,
		})
	}

	if config.Console {
		outputs = append(outputs, &zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: TimeFormat})
	}

	logMu.Lock()
	defer logMu.Unlock()

	closeWriters()
	writers = rotating
	log.Logger = zerolog.New(zerolog.MultiLevelWriter(outputs...)).With().Timestamp().Caller().Logger()

	return nil
}

// levelFilterWriter 只接收属于自身等级的日志
// 未单独配置文件的等级落入 info 文件，未配置的 fatal 落入 error 文件
type levelFilterWriter struct {
	level      zerolog.Level
	configured uint8
	io.Writer
}

func (w *levelFilterWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level == w.level {
		return w.Writer.Write(p)
	}

	if w.configured&(1<<level) != 0 {
		return len(p), nil
	}
	switch w.level {
	case zerolog.InfoLevel:
		return w.Writer.Write(p)
	case zerolog.ErrorLevel:
		if level == zerolog.FatalLevel {
			return w.Writer.Write(p)
		}
	}
	return len(p), nil
}

func parseLevel(name string) zerolog.Level {
	switch strings.ToLower(name) {
	case DEBUG:
		return zerolog.DebugLevel
	case WARN:
		return zerolog.WarnLevel
	case ERROR:
		return zerolog.ErrorLevel
	case FATAL:
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

func closeWriters() {
	for _, lj := range writers {
		_ = lj.Close()
	}
	writers = nil
}

// Component 返回带 component 字段的子 logger
func Component(name string) zerolog.Logger {
	return log.Logger.With().Str("component", name).Logger()
}

func Info() *zerolog.Event {
	return log.Logger.Info()
}

func Debug() *zerolog.Event {
	return log.Logger.Debug()
}

func Warn() *zerolog.Event {
	return log.Logger.Warn()
}

func Error() *zerolog.Event {
	return log.Logger.Error()
}

func Fatal() *zerolog.Event {
	return log.Logger.Fatal()
}

// Infof 格式化 Info 日志
func Infof(format string, args ...any) {
	log.Logger.Info().CallerSkipFrame(1).Msgf(format, args...)
}

// Warnf 格式化 Warn 日志
func Warnf(format string, args ...any) {
	log.Logger.Warn().CallerSkipFrame(1).Msgf(format, args...)
}

// Close 关闭所有文件 writer
func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	closeWriters()
}
