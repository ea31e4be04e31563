package utils_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/NethermindEth/katana/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

var levelStrings = map[*utils.LogLevel]string{
	utils.NewLogLevel(utils.DEBUG): "debug",
	utils.NewLogLevel(utils.INFO):  "info",
	utils.NewLogLevel(utils.WARN):  "warn",
	utils.NewLogLevel(utils.ERROR): "error",
	utils.NewLogLevel(utils.TRACE): "trace",
}

func TestLogLevelString(t *testing.T) {
	for level, str := range levelStrings {
		t.Run("level "+str, func(t *testing.T) {
			assert.Equal(t, str, level.String())
		})
	}
}

func TestLogLevelSet(t *testing.T) {
	for level, str := range levelStrings {
		t.Run("level "+str, func(t *testing.T) {
			l := utils.NewLogLevel(utils.TRACE)
			require.NoError(t, l.Set(str))
			assert.Equal(t, level.Level(), l.Level())
		})
		uppercase := strings.ToUpper(str)
		t.Run("level "+uppercase, func(t *testing.T) {
			l := utils.NewLogLevel(utils.TRACE)
			require.NoError(t, l.Set(uppercase))
			assert.Equal(t, level.Level(), l.Level())
		})
	}

	t.Run("zero value", func(t *testing.T) {
		l := new(utils.LogLevel)
		require.NoError(t, l.Set("warn"))
		assert.Equal(t, utils.WARN, l.Level())
	})

	t.Run("unknown log level", func(t *testing.T) {
		l := new(utils.LogLevel)
		require.ErrorIs(t, l.Set("blah"), utils.ErrUnknownLogLevel)
	})
}

func TestLogLevelUnmarshalText(t *testing.T) {
	for level, str := range levelStrings {
		t.Run("level "+str, func(t *testing.T) {
			l := utils.NewLogLevel(utils.TRACE)
			require.NoError(t, l.UnmarshalText([]byte(str)))
			assert.Equal(t, level.Level(), l.Level())
		})
	}

	t.Run("unknown log level", func(t *testing.T) {
		l := new(utils.LogLevel)
		require.ErrorIs(t, l.UnmarshalText([]byte("blah")), utils.ErrUnknownLogLevel)
	})
}

func TestLogLevelMarshalJSON(t *testing.T) {
	for level, str := range levelStrings {
		t.Run("level "+str, func(t *testing.T) {
			lb, err := json.Marshal(level)
			require.NoError(t, err)
			assert.Equal(t, `"`+str+`"`, string(lb))
		})
	}
}

func TestLogLevelType(t *testing.T) {
	assert.Equal(t, "LogLevel", new(utils.LogLevel).Type())
}

func TestZapLogger(t *testing.T) {
	for level, str := range levelStrings {
		t.Run("level: "+str, func(t *testing.T) {
			_, err := utils.NewZapLogger(level, true)
			require.NoError(t, err)
			_, err = utils.NewZapLogger(level, false)
			require.NoError(t, err)
		})
	}
}

func TestHTTPLogSettings(t *testing.T) {
	logLevel := utils.NewLogLevel(utils.INFO)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		utils.HTTPLogSettings(w, r, logLevel)
	})

	tests := []struct {
		name     string
		method   string
		target   string
		wantCode int
		wantBody string
	}{
		{"get", http.MethodGet, "/log/level", http.StatusOK, "info\n"},
		{"put", http.MethodPut, "/log/level?level=debug", http.StatusOK, "Replaced log level with 'debug' successfully\n"},
		{"missing parameter", http.MethodPut, "/log/level", http.StatusBadRequest, "missing level query parameter\n"},
		{"invalid level", http.MethodPut, "/log/level?level=invalid", http.StatusBadRequest, fmt.Sprint(utils.ErrUnknownLogLevel) + "\n"},
		{"method not allowed", http.MethodPost, "/log/level", http.StatusMethodNotAllowed, "Method not allowed\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, http.NoBody)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantCode, rr.Code)
			assert.Equal(t, tt.wantBody, rr.Body.String())
		})
	}
	assert.Equal(t, utils.DEBUG, logLevel.Level())
}

func TestMarshalYAML(t *testing.T) {
	data, err := yaml.Marshal(*utils.NewLogLevel(utils.WARN))
	require.NoError(t, err)
	assert.Equal(t, "warn\n", string(data))
}

func TestTracew(t *testing.T) {
	for name, enabled := range map[string]bool{"enabled": true, "disabled": false} {
		t.Run(name, func(t *testing.T) {
			logLevel := utils.NewLogLevel(utils.INFO)
			if enabled {
				logLevel = utils.NewLogLevel(utils.TRACE)
			}

			var buf bytes.Buffer
			core := zapcore.NewCore(
				zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
				zapcore.AddSync(&buf),
				logLevel,
			)
			logger := utils.NewZapLoggerWithCore(core)
			assert.Equal(t, enabled, logger.IsTraceEnabled())

			logger.Tracew("trace message")
			assert.Equal(t, enabled, strings.Contains(buf.String(), "trace message"))
		})
	}
}
