package log

import (
	"os"
	"path/filepath"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	ModeDev  = "dev"
	ModeProd = "prod"
)

// Config controls the process-wide logger.
type Config struct {
	Mode       string `yaml:"mode"`      // dev: console encoder; prod: json encoder
	AppName    string `yaml:"app_name"`
	Level      string `yaml:"level"`     // debug/info/warn/error
	Directory  string `yaml:"directory"` // empty: stdout only
	MaxSizeMB  int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

func DefaultConfig() *Config {
	return &Config{
		Mode:       ModeDev,
		AppName:    "app",
		Level:      "debug",
		Directory:  "",
		MaxSizeMB:  100,
		MaxBackups: 7,
		MaxAgeDays: 7,
		Compress:   true,
	}
}

var global atomic.Pointer[zap.SugaredLogger]

func init() {
	global.Store(build(DefaultConfig()))
}

// Init replaces the global logger. Returns a flush func for main to defer.
func Init(c *Config) func() {
	if c == nil {
		c = DefaultConfig()
	}
	l := build(c)
	global.Store(l)
	return func() { _ = l.Sync() }
}

// SetLogger installs an externally built logger (tests, custom sinks).
func SetLogger(l *zap.Logger) {
	if l != nil {
		global.Store(l.Sugar())
	}
}

func build(c *Config) *zap.SugaredLogger {
	level := zapcore.DebugLevel
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if c.Mode == ModeProd {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	sinks := []zapcore.WriteSyncer{zapcore.AddSync(os.Stdout)}
	if c.Directory != "" {
		sinks = append(sinks, zapcore.AddSync(&lumberjack.Logger{
			Filename:   filepath.Join(c.Directory, c.AppName+".log"),
			MaxSize:    c.MaxSizeMB,
			MaxBackups: c.MaxBackups,
			MaxAge:     c.MaxAgeDays,
			Compress:   c.Compress,
			LocalTime:  true,
		}))
	}

	core := zapcore.NewCore(enc, zapcore.NewMultiWriteSyncer(sinks...), level)
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()
}

func Debug(args ...any)                 { global.Load().Debug(args...) }
func Info(args ...any)                  { global.Load().Info(args...) }
func Warn(args ...any)                  { global.Load().Warn(args...) }
func Error(args ...any)                 { global.Load().Error(args...) }
func Debugf(format string, args ...any) { global.Load().Debugf(format, args...) }
func Infof(format string, args ...any)  { global.Load().Infof(format, args...) }
func Warnf(format string, args ...any)  { global.Load().Warnf(format, args...) }
func Errorf(format string, args ...any) { global.Load().Errorf(format, args...) }
func Fatalf(format string, args ...any) { global.Load().Fatalf(format, args...) }
