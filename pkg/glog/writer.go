package glog

import (
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	fileMu sync.Mutex
	file   *lumberjack.Logger
)

// withDefaults 未配置的切割参数取默认值
func (c FileConfig) withDefaults() FileConfig {
	def := DefaultConfig().File
	if c.MaxSize <= 0 {
		c.MaxSize = def.MaxSize
	}
	if c.MaxBackups <= 0 {
		c.MaxBackups = def.MaxBackups
	}
	if c.MaxAge <= 0 {
		c.MaxAge = def.MaxAge
	}
	return c
}

// openFile 替换当前的文件输出，旧文件句柄关闭
func openFile(path string, fc FileConfig) *lumberjack.Logger {
	fc = fc.withDefaults()
	w := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    fc.MaxSize,
		MaxBackups: fc.MaxBackups,
		MaxAge:     fc.MaxAge,
		LocalTime:  fc.LocalTime,
		Compress:   fc.Compress,
	}
	swapFile(w)
	return w
}

func swapFile(w *lumberjack.Logger) {
	fileMu.Lock()
	old := file
	file = w
	fileMu.Unlock()
	if old != nil {
		_ = old.Close()
	}
}

// Rotate 立即切割当前日志文件，没有文件输出时什么也不做
func Rotate() error {
	fileMu.Lock()
	defer fileMu.Unlock()
	if file == nil {
		return nil
	}
	return file.Rotate()
}
