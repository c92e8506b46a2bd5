package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dzm2020/regflow/internal/errs"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeFile(t, `
job:
  name: train
  node: n1
glog:
  level: debug
scheduler:
  dispatcher: goroutine
  throughput: 16
transport:
  type: nats
  nats:
    servers: ["nats://10.0.0.1:4222"]
    codec: wire
watchdog:
  interval: 250ms
  stallTicks: 4
  redis:
    addr: 127.0.0.1:6379
plan: plan.yaml
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	if cfg.Job.Name != "train" || cfg.Job.Node != "n1" {
		t.Fatalf("job 配置错误: %+v", cfg.Job)
	}
	if cfg.Glog.Level != "debug" || !cfg.Glog.PrintConsole {
		t.Fatalf("glog 配置错误，未配置字段应保留默认值: %+v", cfg.Glog)
	}
	if cfg.Scheduler.Dispatcher != DispatcherGoroutine || cfg.Scheduler.Throughput != 16 || cfg.Scheduler.PoolSize != 1024 {
		t.Fatalf("scheduler 配置错误: %+v", cfg.Scheduler)
	}
	nc := cfg.Transport.Nats
	if cfg.Transport.Type != TransportNats || len(nc.Servers) != 1 || nc.Codec != "wire" {
		t.Fatalf("transport 配置错误: %+v", cfg.Transport)
	}
	if nc.Prefix != "regflow" {
		t.Fatalf("未配置前缀时应保留默认值: %s", nc.Prefix)
	}
	if cfg.Watchdog.Interval != 250*time.Millisecond || cfg.Watchdog.StallTicks != 4 {
		t.Fatalf("watchdog 配置错误: %+v", cfg.Watchdog)
	}
	if cfg.Watchdog.Redis.Addr != "127.0.0.1:6379" || cfg.Watchdog.Redis.Key != "regflow:status" {
		t.Fatalf("redis 配置错误: %+v", cfg.Watchdog.Redis)
	}
	if cfg.Plan != "plan.yaml" {
		t.Fatalf("plan 路径错误: %s", cfg.Plan)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"dispatcher": "scheduler:\n  dispatcher: fifo\n",
		"throughput": "scheduler:\n  throughput: 0\n",
		"transport":  "transport:\n  type: kafka\n",
		"nats":       "transport:\n  type: nats\n  nats:\n    username: u\n",
		"watchdog":   "watchdog:\n  stallTicks: 0\n",
	}
	for name, content := range cases {
		_, err := Load(writeFile(t, content))
		if !errors.Is(err, errs.ErrInvalidConfig) {
			t.Fatalf("%s: 应该返回 ErrInvalidConfig，实际 %v", name, err)
		}
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("文件不存在应该报错")
	}
}

func TestDefault(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("默认配置应该合法: %v", err)
	}
}
