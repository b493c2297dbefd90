package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"
)

const (
	FormatJSON    = "json"
	FormatPretty  = "pretty"
	FormatConsole = "console"
)

// Logger is a zerolog logger carrying the service name. The zero value is
// not usable; build one with New, NewWithWriter, NewDefault or Nop.
type Logger struct {
	zl      zerolog.Logger
	service string
}

// New builds a logger writing to the configured output.
func New(cfg *Config, serviceName string) *Logger {
	return NewWithWriter(cfg, serviceName, outputWriter(cfg.Output))
}

// NewWithWriter builds a logger writing to w. An unknown level means info.
func NewWithWriter(cfg *Config, serviceName string, w io.Writer) *Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var zl zerolog.Logger
	switch strings.ToLower(cfg.Format) {
	case FormatConsole, FormatPretty:
		zl = zerolog.New(consoleWriter(cfg.NoColor, serviceName, w))
	default:
		zl = zerolog.New(w)
	}

	ctx := zl.Level(level).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	if cfg.Caller {
		ctx = ctx.Caller()
	}
	if serviceName != "" && serviceName != "default" {
		ctx = ctx.Str("service", serviceName)
	}
	return &Logger{zl: ctx.Logger(), service: serviceName}
}

// NewDefault builds an info-level console logger on stdout.
func NewDefault(serviceName string) *Logger {
	return New(&Config{Level: "info", Format: FormatConsole, Output: "stdout", Timestamp: true}, serviceName)
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// WithComponent returns a child logger tagged with a component name.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{zl: l.zl.With().Str(FieldComponent, name).Logger(), service: l.service}
}

// WithFields returns a child logger that adds fields to every entry.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	return &Logger{zl: l.zl.With().Fields(fields).Logger(), service: l.service}
}

func (l *Logger) Debug(msg string, fields ...map[string]any) { emit(l.zl.Debug(), msg, fields) }
func (l *Logger) Info(msg string, fields ...map[string]any)  { emit(l.zl.Info(), msg, fields) }
func (l *Logger) Warn(msg string, fields ...map[string]any)  { emit(l.zl.Warn(), msg, fields) }
func (l *Logger) Error(msg string, fields ...map[string]any) { emit(l.zl.Error(), msg, fields) }

// emit tolerates a nil event, which zerolog returns for disabled levels.
func emit(e *zerolog.Event, msg string, fields []map[string]any) {
	if e == nil {
		return
	}
	for _, f := range fields {
		e.Fields(f)
	}
	e.Msg(msg)
}

var global atomic.Pointer[Logger]

// Init replaces the global logger with one built from cfg.
func Init(cfg Config) {
	cfg.ApplyDefaults()
	name := cfg.ServiceName
	if name == "" {
		name = "default"
	}
	SetGlobalLogger(New(&cfg, name))
}

// SetGlobalLogger replaces the global logger.
func SetGlobalLogger(l *Logger) { global.Store(l) }

// GetGlobalLogger returns the global logger, installing a default console
// logger on first use.
func GetGlobalLogger() *Logger {
	if l := global.Load(); l != nil {
		return l
	}
	global.CompareAndSwap(nil, NewDefault("default"))
	return global.Load()
}

func Debug(msg string, fields ...map[string]any) { GetGlobalLogger().Debug(msg, fields...) }
func Info(msg string, fields ...map[string]any)  { GetGlobalLogger().Info(msg, fields...) }
func Warn(msg string, fields ...map[string]any)  { GetGlobalLogger().Warn(msg, fields...) }
func Error(msg string, fields ...map[string]any) { GetGlobalLogger().Error(msg, fields...) }

// WithComponent tags the global logger with a component name.
func WithComponent(name string) *Logger {
	return GetGlobalLogger().WithComponent(name)
}

func outputWriter(output string) io.Writer {
	if strings.EqualFold(output, "stderr") {
		return os.Stderr
	}
	return os.Stdout
}

type levelStyle struct {
	tag   string
	color string
}

var levelStyles = map[string]levelStyle{
	"debug": {"[DBG]", "36"},
	"info":  {"[INF]", "32"},
	"warn":  {"[WRN]", "33"},
	"error": {"[ERR]", "31"},
	"fatal": {"[FTL]", "35"},
}

// consoleWriter prefixes each line with the first three letters of the
// service name and a short level tag: "[EVE][INF] listening".
func consoleWriter(noColor bool, serviceName string, out io.Writer) zerolog.ConsoleWriter {
	prefix := ""
	if serviceName != "default" && len(serviceName) >= 3 {
		prefix = "[" + strings.ToUpper(serviceName[:3]) + "]"
		if !noColor {
			prefix = "\033[34m" + prefix + "\033[0m"
		}
	}
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: "15:04:05",
		NoColor:    noColor,
		FormatLevel: func(i any) string {
			lvl := fmt.Sprint(i)
			style, ok := levelStyles[lvl]
			if !ok {
				return prefix + "[" + strings.ToUpper(lvl) + "]"
			}
			if noColor {
				return prefix + style.tag
			}
			return prefix + "\033[" + style.color + "m" + style.tag + "\033[0m"
		},
		FormatFieldName: func(i any) string { return fmt.Sprint(i) + ":" },
	}
}
