package utils

import (
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var ErrUnknownLogLevel = errors.New("unknown log level (known: trace, debug, info, warn, error)")

const (
	TRACE zapcore.Level = iota - 2
	DEBUG
	INFO
	WARN
	ERROR
)

const timeFormat = "15:04:05.000 02/01/2006 -07:00"

// LogLevel is a level that can be changed while loggers built from it are running.
type LogLevel struct {
	atomicLevel zap.AtomicLevel
}

// The following are necessary for Cobra and Viper, respectively, to unmarshal log level
// CLI/config parameters properly.
var (
	_ pflag.Value              = (*LogLevel)(nil)
	_ encoding.TextUnmarshaler = (*LogLevel)(nil)
	_ zapcore.LevelEnabler     = (*LogLevel)(nil)
)

func NewLogLevel(level zapcore.Level) *LogLevel {
	return &LogLevel{atomicLevel: zap.NewAtomicLevelAt(level)}
}

func (l LogLevel) Level() zapcore.Level {
	return l.atomicLevel.Level()
}

func (l *LogLevel) SetLevel(level zapcore.Level) {
	l.atomicLevel.SetLevel(level)
}

func (l LogLevel) Enabled(level zapcore.Level) bool {
	return l.atomicLevel.Enabled(level)
}

func (l LogLevel) String() string {
	switch l.Level() {
	case TRACE:
		return "trace"
	case DEBUG:
		return "debug"
	case INFO:
		return "info"
	case WARN:
		return "warn"
	case ERROR:
		return "error"
	default:
		// Should not happen.
		panic(ErrUnknownLogLevel)
	}
}

func (l LogLevel) MarshalYAML() (any, error) {
	return l.String(), nil
}

func (l LogLevel) MarshalJSON() ([]byte, error) {
	return json.RawMessage(`"` + l.String() + `"`), nil
}

func (l *LogLevel) Set(s string) error {
	var level zapcore.Level
	switch s {
	case "TRACE", "trace":
		level = TRACE
	case "DEBUG", "debug":
		level = DEBUG
	case "INFO", "info":
		level = INFO
	case "WARN", "warn":
		level = WARN
	case "ERROR", "error":
		level = ERROR
	default:
		return ErrUnknownLogLevel
	}
	if l.atomicLevel == (zap.AtomicLevel{}) {
		l.atomicLevel = zap.NewAtomicLevelAt(level)
		return nil
	}
	l.atomicLevel.SetLevel(level)
	return nil
}

func (l LogLevel) Type() string {
	return "LogLevel"
}

func (l *LogLevel) UnmarshalText(text []byte) error {
	return l.Set(string(text))
}

// HTTPLogSettings reads (GET) or replaces (PUT ?level=) the running log level.
func HTTPLogSettings(w http.ResponseWriter, r *http.Request, logLevel *LogLevel) {
	switch r.Method {
	case http.MethodGet:
		fmt.Fprintf(w, "%s\n", logLevel)
	case http.MethodPut:
		levelStr := r.URL.Query().Get("level")
		if levelStr == "" {
			http.Error(w, "missing level query parameter", http.StatusBadRequest)
			return
		}
		if err := logLevel.Set(levelStr); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		fmt.Fprintf(w, "Replaced log level with '%s' successfully\n", levelStr)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type Logger interface {
	SimpleLogger
	pebble.Logger
	Tracew(msg string, keysAndValues ...any)
}

type SimpleLogger interface {
	Debugw(msg string, keysAndValues ...any)
	Infow(msg string, keysAndValues ...any)
	Warnw(msg string, keysAndValues ...any)
	Errorw(msg string, keysAndValues ...any)
}

type ZapLogger struct {
	*zap.SugaredLogger
}

var _ Logger = (*ZapLogger)(nil)

func NewNopZapLogger() *ZapLogger {
	return &ZapLogger{zap.NewNop().Sugar()}
}

func NewZapLogger(logLevel *LogLevel, colour bool) (*ZapLogger, error) {
	config := zap.NewProductionConfig()
	config.Sampling = nil
	config.Encoding = "console"
	config.EncoderConfig.EncodeLevel = levelEncoder(colour)
	config.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Local().Format(timeFormat))
	}
	config.Level = logLevel.atomicLevel

	log, err := config.Build()
	if err != nil {
		return nil, err
	}
	return &ZapLogger{log.Sugar()}, nil
}

func NewZapLoggerWithCore(core zapcore.Core) *ZapLogger {
	return &ZapLogger{zap.New(core).Sugar()}
}

func levelEncoder(colour bool) zapcore.LevelEncoder {
	return func(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		if level == TRACE {
			if colour {
				enc.AppendString("\x1b[34mTRACE\x1b[0m")
			} else {
				enc.AppendString("TRACE")
			}
			return
		}
		if colour {
			zapcore.CapitalColorLevelEncoder(level, enc)
		} else {
			zapcore.CapitalLevelEncoder(level, enc)
		}
	}
}

func (l *ZapLogger) IsTraceEnabled() bool {
	return l.Desugar().Core().Enabled(TRACE)
}

func (l *ZapLogger) Tracew(msg string, keysAndValues ...any) {
	if l.IsTraceEnabled() {
		l.Logw(TRACE, msg, keysAndValues...)
	}
}

func (l *ZapLogger) Warningf(msg string, args ...any) {
	l.Warnf(msg, args...)
}
