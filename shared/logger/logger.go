package logger

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/trypto13/jeet-tracker/shared/notifications"
)

// Logger wraps zap with an optional Telegram mirror: WARN and above are
// forwarded to the admin chat so operational problems surface without
// watching stdout.
type Logger struct {
	sugar  *zap.SugaredLogger
	level  zap.AtomicLevel
	mirror func(string)
}

type Config struct {
	Level          string
	Environment    string
	EnableTelegram bool
}

var globalLogger *Logger

func parseLevel(s string) (zapcore.Level, bool) {
	switch strings.ToLower(s) {
	case "debug":
		return zap.DebugLevel, true
	case "", "info":
		return zap.InfoLevel, true
	case "warn", "warning":
		return zap.WarnLevel, true
	case "error":
		return zap.ErrorLevel, true
	case "fatal":
		return zap.FatalLevel, true
	}
	return zap.InfoLevel, false
}

func NewLogger(cfg Config) (*Logger, error) {
	logLevel, ok := parseLevel(cfg.Level)
	if !ok {
		fmt.Printf("WARN: Invalid log level '%s' specified, defaulting to INFO\n", cfg.Level)
	}
	level := zap.NewAtomicLevelAt(logLevel)

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.LevelKey = "severity"
	encoderConfig.MessageKey = "message"
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.Lock(os.Stdout),
		level,
	)
	// Skip the wrapper frame so call sites show up as the caller.
	sugar := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()

	l := &Logger{sugar: sugar, level: level}
	if cfg.EnableTelegram {
		l.mirror = notifications.SendAdminLog
	}
	globalLogger = l

	l.sugar.Infof("Logger initialized. Level: %s, Telegram mirroring: %t", logLevel.String(), l.mirror != nil)
	return l, nil
}

func GetLogger() *Logger {
	if globalLogger == nil {
		fmt.Println("FATAL: Global logger requested before initialization.")
		os.Exit(1)
	}
	return globalLogger
}

func (l *Logger) Zap() *zap.SugaredLogger {
	return l.sugar
}

func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, keysAndValues...)
}

func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.log(zapcore.WarnLevel, msg, keysAndValues)
}

func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.log(zapcore.ErrorLevel, msg, keysAndValues)
}

// Fatal mirrors before exiting so the admin chat sees the reason the
// process died.
func (l *Logger) Fatal(msg string, keysAndValues ...interface{}) {
	l.log(zapcore.FatalLevel, msg, keysAndValues)
}

// log is the single path for everything at WARN and above: write to zap,
// mirror to the admin chat, and terminate on fatal.
func (l *Logger) log(lvl zapcore.Level, msg string, keysAndValues []interface{}) {
	if lvl == zapcore.WarnLevel {
		l.sugar.Warnw(msg, keysAndValues...)
	} else {
		l.sugar.Errorw(msg, keysAndValues...)
	}

	if l.mirror != nil {
		l.mirror(mirrorLine(lvl, msg, keysAndValues))
		if lvl == zapcore.FatalLevel {
			// Give the outbound queue a moment to flush before exit.
			time.Sleep(1 * time.Second)
		}
	}
	if lvl == zapcore.FatalLevel {
		l.sugar.Fatalw(msg, keysAndValues...)
	}
}

var mirrorBadges = map[zapcore.Level]string{
	zapcore.WarnLevel:  "🟡 *WARN*",
	zapcore.ErrorLevel: "🔴 *ERROR*",
	zapcore.FatalLevel: "💀 *FATAL*",
}

// mirrorLine renders one structured log entry as a Telegram message: badge
// plus message, then, when there are fields, the fields in a code span on a
// second line.
func mirrorLine(lvl zapcore.Level, msg string, keysAndValues []interface{}) string {
	var fields []string
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		value := keysAndValues[i+1]
		if err, ok := value.(error); ok {
			value = err.Error()
		}
		fields = append(fields, fmt.Sprintf("%v=%v", keysAndValues[i], value))
	}
	line := fmt.Sprintf("%s %s", mirrorBadges[lvl], msg)
	if len(fields) > 0 {
		line += fmt.Sprintf("\n`%s`", strings.Join(fields, ", "))
	}
	return line
}

func (l *Logger) SetLevel(level string) {
	logLevel, ok := parseLevel(level)
	if !ok {
		l.sugar.Warnf("Invalid log level '%s' provided to SetLevel, level unchanged.", level)
		return
	}
	l.level.SetLevel(logLevel)
	l.sugar.Infof("Logger level changed to: %s", logLevel.String())
}
