package glog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestInit_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regflow.log")
	cfg := DefaultConfig()
	cfg.Path = path
	cfg.PrintConsole = false
	cfg.Level = "warn"
	Init(cfg, zap.String("job", "demo"))
	defer Init(DefaultConfig())

	if GetLevel() != zapcore.WarnLevel {
		t.Fatalf("日志级别应该是 warn, 实际 %v", GetLevel())
	}
	Info("dropped")
	Warn("actor stalled", Actor(3), Slot("in"), Piece(7))
	Stop()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("读取日志文件失败: %v", err)
	}
	text := string(data)
	if strings.Contains(text, "dropped") {
		t.Fatal("低于 warn 的日志不应该写入")
	}
	for _, want := range []string{`"actor stalled"`, `"actor":3`, `"slot":"in"`, `"piece":7`, `"job":"demo"`} {
		if !strings.Contains(text, want) {
			t.Fatalf("日志缺少 %s: %s", want, text)
		}
	}

	SetLogLevel(zapcore.DebugLevel)
	Debugf("piece %d", 8)
	if err = Rotate(); err != nil {
		t.Fatalf("切割失败: %v", err)
	}
	Stop()
}

func TestFileConfig_Defaults(t *testing.T) {
	fc := FileConfig{MaxSize: 10}.withDefaults()
	if fc.MaxSize != 10 || fc.MaxBackups != 100 || fc.MaxAge != 30 {
		t.Fatalf("默认值错误: %+v", fc)
	}
}
