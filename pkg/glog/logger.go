// Package glog 全局日志，基于 zap，文件输出走 lumberjack 切割
package glog

import (
	"os"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	loggerValue atomic.Pointer[zap.Logger]
	atomicLevel = zap.NewAtomicLevel()
)

func init() {
	Init(DefaultConfig())
}

// Init 初始化全局 logger，cfg 为 nil 时保持原样；fields 附加到之后的每条日志，一般是作业名和节点名
func Init(cfg *Config, fields ...zap.Field) {
	if cfg == nil {
		return
	}
	atomicLevel.SetLevel(parseLevel(cfg.Level))
	encoderConfig := zapcore.EncoderConfig{
		MessageKey:     "M",
		LevelKey:       "L",
		TimeKey:        "T",
		CallerKey:      "C",
		NameKey:        "N",
		StacktraceKey:  "S",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05.000000Z0700"),
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	cores := make([]zapcore.Core, 0, 2)
	if cfg.Path != "" {
		w := openFile(cfg.Path, cfg.File)
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(w), atomicLevel))
	} else {
		swapFile(nil)
	}
	if cfg.PrintConsole || len(cores) == 0 {
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.Lock(os.Stdout), atomicLevel))
	}
	logger := zap.New(zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddStacktrace(zap.ErrorLevel),
		zap.AddCallerSkip(1),
		zap.Fields(fields...),
	)
	loggerValue.Store(logger)
}

// Stop 同步所有缓冲的日志并关闭日志文件，之后再写日志会重新打开文件
func Stop() {
	if l := loggerValue.Load(); l != nil {
		_ = l.Sync()
	}
	fileMu.Lock()
	defer fileMu.Unlock()
	if file != nil {
		_ = file.Close()
	}
}

// SetLogLevel 设置日志级别
func SetLogLevel(logLevel zapcore.Level) {
	atomicLevel.SetLevel(logLevel)
}

// GetLevel 获取当前日志级别
func GetLevel() zapcore.Level {
	return atomicLevel.Level()
}

// L 返回底层 logger，给需要 With 子 logger 的地方用
func L() *zap.Logger {
	if l := loggerValue.Load(); l != nil {
		return l.WithOptions(zap.AddCallerSkip(-1))
	}
	return zap.NewNop()
}

func Debug(msg string, fields ...zap.Field) {
	if l := loggerValue.Load(); l != nil {
		l.Debug(msg, fields...)
	}
}

func Info(msg string, fields ...zap.Field) {
	if l := loggerValue.Load(); l != nil {
		l.Info(msg, fields...)
	}
}

func Warn(msg string, fields ...zap.Field) {
	if l := loggerValue.Load(); l != nil {
		l.Warn(msg, fields...)
	}
}

func Error(msg string, fields ...zap.Field) {
	if l := loggerValue.Load(); l != nil {
		l.Error(msg, fields...)
	}
}

// Fatal 输出 Fatal 级别日志并退出程序
func Fatal(msg string, fields ...zap.Field) {
	if l := loggerValue.Load(); l != nil {
		l.Fatal(msg, fields...)
	}
}

func Debugf(template string, args ...interface{}) {
	if l := loggerValue.Load(); l != nil {
		l.Sugar().Debugf(template, args...)
	}
}

func Infof(template string, args ...interface{}) {
	if l := loggerValue.Load(); l != nil {
		l.Sugar().Infof(template, args...)
	}
}

func Warnf(template string, args ...interface{}) {
	if l := loggerValue.Load(); l != nil {
		l.Sugar().Warnf(template, args...)
	}
}

func Errorf(template string, args ...interface{}) {
	if l := loggerValue.Load(); l != nil {
		l.Sugar().Errorf(template, args...)
	}
}
