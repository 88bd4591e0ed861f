package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps a LOG_LEVEL value to a Level. Unknown values yield LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

type Logger struct {
	level  Level
	logger *log.Logger
	fields []Field
	mu     *sync.RWMutex
}

var (
	defaultLogger *Logger
	once          sync.Once
)

func Init(level Level) {
	once.Do(func() {
		defaultLogger = &Logger{
			level:  level,
			logger: log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds),
			mu:     &sync.RWMutex{},
		}
	})
}

func GetLogger() *Logger {
	Init(LevelInfo)
	return defaultLogger
}

// NewLogger returns a logger prefixed with [name] at the default logger's level.
func NewLogger(name string) *Logger {
	return &Logger{
		level:  GetLogger().Level(),
		logger: log.New(os.Stderr, "["+name+"] ", log.LstdFlags|log.Lmicroseconds),
		mu:     &sync.RWMutex{},
	}
}

// New returns a logger that writes to w. Tests use it to capture output.
func New(w io.Writer, name string, level Level) *Logger {
	prefix := ""
	if name != "" {
		prefix = "[" + name + "] "
	}
	return &Logger{
		level:  level,
		logger: log.New(w, prefix, log.LstdFlags|log.Lmicroseconds),
		mu:     &sync.RWMutex{},
	}
}

// With returns a child logger that appends fields to every entry. The child
// starts at the parent's level.
func (l *Logger) With(fields ...Field) *Logger {
	merged := make([]Field, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	merged = append(merged, fields...)
	return &Logger{
		level:  l.level,
		logger: l.logger,
		fields: merged,
		mu:     l.mu,
	}
}

func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *Logger) Level() Level {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level
}

func (l *Logger) Debug(msg string, fields ...Field) {
	l.log(LevelDebug, msg, fields...)
}

func (l *Logger) Info(msg string, fields ...Field) {
	l.log(LevelInfo, msg, fields...)
}

func (l *Logger) Warn(msg string, fields ...Field) {
	l.log(LevelWarn, msg, fields...)
}

func (l *Logger) Error(msg string, fields ...Field) {
	l.log(LevelError, msg, fields...)
}

func (l *Logger) log(level Level, msg string, fields ...Field) {
	if level < l.Level() {
		return
	}

	all := fields
	if len(l.fields) > 0 {
		all = append(append([]Field(nil), l.fields...), fields...)
	}

	if fieldStr := formatFields(all); fieldStr != "" {
		l.logger.Printf("[%s] %s %s", levelString(level), msg, fieldStr)
	} else {
		l.logger.Printf("[%s] %s", levelString(level), msg)
	}
}

func levelString(level Level) string {
	switch level {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

type Field struct {
	Key   string
	Value interface{}
}

// F is shorthand for Field{Key: key, Value: value}.
func F(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

func formatFields(fields []Field) string {
	if len(fields) == 0 {
		return ""
	}

	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(f.Key)
		b.WriteByte('=')
		b.WriteString(FormatValue(f.Value))
	}
	return b.String()
}

func FormatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "<nil>"
	case string:
		return quote(val)
	case bool:
		if val {
			return "true"
		}
		return "false"
	case int:
		return fmt.Sprintf("%d", val)
	case int64:
		return fmt.Sprintf("%d", val)
	case uint64:
		return fmt.Sprintf("%d", val)
	case float32:
		return fmt.Sprintf("%.2f", val)
	case float64:
		return fmt.Sprintf("%.2f", val)
	case time.Duration:
		return val.String()
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case error:
		return quote(val.Error())
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}

func Debug(msg string, fields ...Field) {
	GetLogger().Debug(msg, fields...)
}

func Info(msg string, fields ...Field) {
	GetLogger().Info(msg, fields...)
}

func Warn(msg string, fields ...Field) {
	GetLogger().Warn(msg, fields...)
}

func Error(msg string, fields ...Field) {
	GetLogger().Error(msg, fields...)
}

func quote(s string) string {
	if strings.ContainsAny(s, " \t\"") {
		return fmt.Sprintf("%q", s)
	}
	return s
}
