package config

import (
	"fmt"
	"net/url"
	"time"
)

// SignalingConfig 信令代理配置
type SignalingConfig struct {
	// BrokerURL 信令代理的WebSocket地址 (ws:// 或 wss://)
	BrokerURL string `yaml:"broker_url" json:"broker_url"`

	// ReconnectDelay 等待初始offer期间代理断开后的重连间隔
	ReconnectDelay time.Duration `yaml:"reconnect_delay" json:"reconnect_delay"`

	// HandshakeTimeout WebSocket握手超时
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" json:"handshake_timeout"`
}

// DefaultSignalingConfig 返回默认信令配置
func DefaultSignalingConfig() *SignalingConfig {
	return &SignalingConfig{
		BrokerURL:        "wss://localhost:8081",
		ReconnectDelay:   2 * time.Second,
		HandshakeTimeout: 10 * time.Second,
	}
}

// Validate 验证信令配置
func (c *SignalingConfig) Validate() error {
	if c.BrokerURL == "" {
		return fmt.Errorf("broker URL cannot be empty")
	}

	u, err := url.Parse(c.BrokerURL)
	if err != nil {
		return fmt.Errorf("invalid broker URL: %w", err)
	}

	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("broker URL scheme must be 'ws' or 'wss': %s", c.BrokerURL)
	}

	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("reconnect delay must be positive")
	}

	if c.HandshakeTimeout <= 0 {
		return fmt.Errorf("handshake timeout must be positive")
	}

	return nil
}
