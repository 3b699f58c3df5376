package zapLogger

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	once sync.Once
	Log  = zap.NewNop().Sugar()
)

// Init initializes the global logger writing to stdout and path, and returns
// the opened log file handle. Later calls return the first result.
func Init(path, level string) (*os.File, error) {
	var (
		logFile *os.File
		initErr error
	)
	once.Do(func() {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			initErr = fmt.Errorf("invalid log level %q: %w", level, err)
			return
		}

		logFile, err = os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			initErr = fmt.Errorf("cannot open log file: %w", err)
			return
		}

		Log = New(zapcore.NewMultiWriteSyncer(zapcore.AddSync(os.Stdout), zapcore.AddSync(logFile)), lvl)
	})
	return logFile, initErr
}

// New builds a sugared console logger on ws.
func New(ws zapcore.WriteSyncer, level zapcore.Level) *zap.SugaredLogger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), ws, level)
	return zap.New(core, zap.AddCaller()).Sugar()
}

// FiberLoggingMiddleware returns Fiber's built-in logger middleware writing logs to stdout and given logFile
func FiberLoggingMiddleware(logFile io.Writer) fiber.Handler {
	out := io.Writer(os.Stdout)
	if logFile != nil {
		out = io.MultiWriter(os.Stdout, logFile)
	}
	return logger.New(logger.Config{
		Output:     out,
		Format:     "${time} | ${status} | ${method} | ${path} | ${latency}\n",
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "UTC",
	})
}
