package nats

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Config NATS 传输配置
type Config struct {
	Servers              []string `json:"servers" yaml:"servers" mapstructure:"servers"`                                        // 服务器地址列表
	Name                 string   `json:"name" yaml:"name" mapstructure:"name"`                                                 // 客户端名称
	Prefix               string   `json:"prefix" yaml:"prefix" mapstructure:"prefix"`                                           // 主题前缀，一个作业一个前缀
	Codec                string   `json:"codec" yaml:"codec" mapstructure:"codec"`                                              // msgpack / wire
	MaxReconnects        int      `json:"maxReconnects" yaml:"maxReconnects" mapstructure:"maxReconnects"`                      // 最大重连次数，-1 表示无限重连
	ReconnectWaitMs      int      `json:"reconnectWaitMs" yaml:"reconnectWaitMs" mapstructure:"reconnectWaitMs"`                // 重连等待时间（毫秒）
	TimeoutMs            int      `json:"timeoutMs" yaml:"timeoutMs" mapstructure:"timeoutMs"`                                  // 连接超时时间（毫秒）
	PingIntervalMs       int      `json:"pingIntervalMs" yaml:"pingIntervalMs" mapstructure:"pingIntervalMs"`                   // Ping 间隔（毫秒）
	MaxPingsOut          int      `json:"maxPingsOut" yaml:"maxPingsOut" mapstructure:"maxPingsOut"`                            // 最大未响应 Ping 数量
	AllowReconnect       bool     `json:"allowReconnect" yaml:"allowReconnect" mapstructure:"allowReconnect"`                   // 是否允许重连
	Username             string   `json:"username" yaml:"username" mapstructure:"username"`                                     // 用户名
	Password             string   `json:"password" yaml:"password" mapstructure:"password"`                                     // 密码
	Token                string   `json:"token" yaml:"token" mapstructure:"token"`                                              // Token 认证
	RetryOnFailedConnect bool     `json:"retryOnFailedConnect" yaml:"retryOnFailedConnect" mapstructure:"retryOnFailedConnect"` // 连接失败时重试
}

func (c *Config) Validate() error {
	if len(c.Servers) == 0 {
		return fmt.Errorf("servers cannot be empty")
	}
	if c.Username != "" && c.Password == "" {
		return fmt.Errorf("password is required when username is set")
	}
	if c.Prefix == "" {
		return fmt.Errorf("subject prefix cannot be empty")
	}
	return nil
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Servers:         []string{nats.DefaultURL},
		Name:            "regflow",
		Prefix:          "regflow",
		Codec:           "msgpack",
		MaxReconnects:   -1,
		ReconnectWaitMs: 2000,
		TimeoutMs:       5000,
		PingIntervalMs:  120000,
		MaxPingsOut:     2,
		AllowReconnect:  true,
	}
}

// toOptions 将 Config 转换为 nats.Option 列表
func toOptions(cfg *Config) []nats.Option {
	var natsOpts []nats.Option

	if cfg.Name != "" {
		natsOpts = append(natsOpts, nats.Name(cfg.Name))
	}

	// AllowReconnect 为 false 时 MaxReconnects 置 0 禁用重连
	maxReconnects := cfg.MaxReconnects
	if !cfg.AllowReconnect {
		maxReconnects = 0
	}
	natsOpts = append(natsOpts, nats.MaxReconnects(maxReconnects))

	if cfg.ReconnectWaitMs > 0 {
		natsOpts = append(natsOpts, nats.ReconnectWait(time.Duration(cfg.ReconnectWaitMs)*time.Millisecond))
	}
	if cfg.TimeoutMs > 0 {
		natsOpts = append(natsOpts, nats.Timeout(time.Duration(cfg.TimeoutMs)*time.Millisecond))
	}
	if cfg.PingIntervalMs > 0 {
		natsOpts = append(natsOpts, nats.PingInterval(time.Duration(cfg.PingIntervalMs)*time.Millisecond))
	}
	if cfg.MaxPingsOut > 0 {
		natsOpts = append(natsOpts, nats.MaxPingsOutstanding(cfg.MaxPingsOut))
	}
	if cfg.Username != "" && cfg.Password != "" {
		natsOpts = append(natsOpts, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		natsOpts = append(natsOpts, nats.Token(cfg.Token))
	}
	if cfg.RetryOnFailedConnect {
		natsOpts = append(natsOpts, nats.RetryOnFailedConnect(true))
	}
	return natsOpts
}
