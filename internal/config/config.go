package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/open-beagle/eyecam-webrtc/internal/metrics"
)

// Config 聚合器：eyecam-webrtc 全部配置模块
type Config struct {
	// Sink 输出模块配置（编解码器、会合名称）
	Sink *SinkConfig `yaml:"sink" json:"sink"`

	// Source H264输入源配置
	Source *SourceConfig `yaml:"source" json:"source"`

	// WebRTC 传输配置模块
	WebRTC *WebRTCConfig `yaml:"webrtc" json:"webrtc"`

	// Signaling 信令代理配置
	Signaling *SignalingConfig `yaml:"signaling" json:"signaling"`

	// Metrics 监控配置模块
	Metrics *metrics.MetricsConfig `yaml:"metrics" json:"metrics"`

	// Logging 日志配置模块
	Logging *LoggingConfig `yaml:"logging" json:"logging"`

	// 生命周期管理配置
	Lifecycle LifecycleConfig `yaml:"lifecycle" json:"lifecycle"`
}

// LifecycleConfig 生命周期管理配置
type LifecycleConfig struct {
	// 优雅关闭超时时间
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`

	// 组件启动超时时间
	StartupTimeout time.Duration `yaml:"startup_timeout" json:"startup_timeout"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	metricsCfg := metrics.DefaultMetricsConfig()

	cfg := &Config{
		Sink:      DefaultSinkConfig(),
		Source:    DefaultSourceConfig(),
		WebRTC:    DefaultWebRTCConfig(),
		Signaling: DefaultSignalingConfig(),
		Metrics:   &metricsCfg,
		Logging:   DefaultLoggingConfig(),
	}

	cfg.Lifecycle.ShutdownTimeout = 30 * time.Second
	cfg.Lifecycle.StartupTimeout = 60 * time.Second

	return cfg
}

// LoadConfigFromFile 从文件加载配置
func LoadConfigFromFile(filename string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %v", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %v", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// LoadFromEnv 应用 EYECAM_* 环境变量覆盖
func (c *Config) LoadFromEnv() {
	if name := os.Getenv("EYECAM_RENDEZVOUS"); name != "" {
		c.Sink.RendezvousName = name
	}
	if codec := os.Getenv("EYECAM_CODEC"); codec != "" {
		c.Sink.Codec = codec
	}
	if broker := os.Getenv("EYECAM_BROKER_URL"); broker != "" {
		c.Signaling.BrokerURL = broker
	}
	if input := os.Getenv("EYECAM_INPUT"); input != "" {
		c.Source.Path = input
	}

	c.Logging.MergeEnv()
}

// Validate 验证全部配置模块
func (c *Config) Validate() error {
	if c.Sink != nil {
		if err := c.Sink.Validate(); err != nil {
			return fmt.Errorf("sink config: %w", err)
		}
	}

	if c.Source != nil {
		if err := c.Source.Validate(); err != nil {
			return fmt.Errorf("source config: %w", err)
		}
	}

	if c.WebRTC != nil {
		if err := c.WebRTC.Validate(); err != nil {
			return fmt.Errorf("webrtc config: %w", err)
		}
	}

	if c.Signaling != nil {
		if err := c.Signaling.Validate(); err != nil {
			return fmt.Errorf("signaling config: %w", err)
		}
	}

	if c.Metrics != nil {
		if err := c.Metrics.Validate(); err != nil {
			return fmt.Errorf("metrics config: %w", err)
		}
	}

	if c.Logging != nil {
		if err := c.Logging.Validate(); err != nil {
			return fmt.Errorf("logging config: %w", err)
		}
	}

	return nil
}

// SaveToFile 将配置保存到文件
func (c *Config) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
