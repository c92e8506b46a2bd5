// Package config 引擎配置，YAML 文件经 viper 读入
package config

import (
	"time"

	"github.com/dzm2020/regflow/internal/errs"
	"github.com/dzm2020/regflow/pkg/glog"
	natsTransport "github.com/dzm2020/regflow/pkg/transport/nats"
	"github.com/spf13/viper"
)

const (
	DispatcherPool      = "pool"
	DispatcherGoroutine = "goroutine"
	DispatcherSync      = "sync"

	TransportNone = ""
	TransportNats = "nats"
)

// Config 引擎配置
type Config struct {
	// Job 作业
	Job struct {
		Name string `json:"name" yaml:"name" mapstructure:"name"` // 作业名，也是 NATS 主题前缀的默认值
		Node string `json:"node" yaml:"node" mapstructure:"node"` // 本节点名，只运行 plan 中 node 为空或相同的 actor
	} `json:"job" yaml:"job" mapstructure:"job"`

	// Glog 日志配置
	Glog glog.Config `json:"glog" yaml:"glog" mapstructure:"glog"`

	// Scheduler actor 调度
	Scheduler struct {
		Dispatcher string `json:"dispatcher" yaml:"dispatcher" mapstructure:"dispatcher"` // pool / goroutine / sync
		Throughput int    `json:"throughput" yaml:"throughput" mapstructure:"throughput"` // 单次调度最多处理的消息数
		PoolSize   int    `json:"poolSize" yaml:"poolSize" mapstructure:"poolSize"`       // 协程池大小
	} `json:"scheduler" yaml:"scheduler" mapstructure:"scheduler"`

	// Transport 跨进程传输
	Transport struct {
		Type string               `json:"type" yaml:"type" mapstructure:"type"` // 为空时只运行单进程
		Nats natsTransport.Config `json:"nats" yaml:"nats" mapstructure:"nats"`
	} `json:"transport" yaml:"transport" mapstructure:"transport"`

	// Watchdog 运行状态巡检
	Watchdog struct {
		Interval   time.Duration `json:"interval" yaml:"interval" mapstructure:"interval"`       // 巡检间隔，0 关闭
		StallTicks int           `json:"stallTicks" yaml:"stallTicks" mapstructure:"stallTicks"` // 连续多少次无进展视为停滞
		Redis      struct {
			Addr string `json:"addr" yaml:"addr" mapstructure:"addr"` // 为空不上报
			Key  string `json:"key" yaml:"key" mapstructure:"key"`    // hash key
		} `json:"redis" yaml:"redis" mapstructure:"redis"`
	} `json:"watchdog" yaml:"watchdog" mapstructure:"watchdog"`

	// Plan plan 文件路径，命令行参数优先
	Plan string `json:"plan" yaml:"plan" mapstructure:"plan"`
}

// Load 读取配置文件，未出现的字段保留默认值
func Load(path string) (*Config, error) {
	vp := viper.New()
	vp.SetConfigFile(path)
	vp.SetConfigType("yaml")
	if err := vp.ReadInConfig(); err != nil {
		return nil, errs.Wrapf(err, "read config %s", path)
	}
	cfg := Default()
	if err := vp.Unmarshal(cfg); err != nil {
		return nil, errs.Wrapf(err, "unmarshal config %s", path)
	}
	if cfg.Transport.Nats.Prefix == "" {
		cfg.Transport.Nats.Prefix = cfg.Job.Name
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Default() *Config {
	cfg := &Config{}
	cfg.Job.Name = "regflow"
	cfg.Glog = *glog.DefaultConfig()
	cfg.Scheduler.Dispatcher = DispatcherPool
	cfg.Scheduler.Throughput = 300
	cfg.Scheduler.PoolSize = 1024
	cfg.Transport.Nats = *natsTransport.DefaultConfig()
	cfg.Watchdog.Interval = time.Second
	cfg.Watchdog.StallTicks = 10
	cfg.Watchdog.Redis.Key = "regflow:status"
	return cfg
}

func (c *Config) Validate() error {
	switch c.Scheduler.Dispatcher {
	case DispatcherPool, DispatcherGoroutine, DispatcherSync:
	default:
		return errs.Wrapf(errs.ErrInvalidConfig, "unknown dispatcher %q", c.Scheduler.Dispatcher)
	}
	if c.Scheduler.Throughput <= 0 {
		return errs.Wrapf(errs.ErrInvalidConfig, "throughput must be positive")
	}
	if c.Scheduler.Dispatcher == DispatcherPool && c.Scheduler.PoolSize <= 0 {
		return errs.Wrapf(errs.ErrInvalidConfig, "poolSize must be positive")
	}
	switch c.Transport.Type {
	case TransportNone:
	case TransportNats:
		if err := c.Transport.Nats.Validate(); err != nil {
			return errs.Wrapf(errs.ErrInvalidConfig, "nats: %v", err)
		}
	default:
		return errs.Wrapf(errs.ErrInvalidConfig, "unknown transport %q", c.Transport.Type)
	}
	if c.Watchdog.Interval < 0 || (c.Watchdog.Interval > 0 && c.Watchdog.StallTicks <= 0) {
		return errs.Wrapf(errs.ErrInvalidConfig, "watchdog interval %v stallTicks %d", c.Watchdog.Interval, c.Watchdog.StallTicks)
	}
	return nil
}
