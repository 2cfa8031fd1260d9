package config

import (
	"fmt"
	"strings"
	"time"
)

// WebRTCConfig WebRTC传输配置模块
type WebRTCConfig struct {
	ICEServers     []ICEServerConfig `yaml:"ice_servers" json:"ice_servers"`
	VideoTrackID   string            `yaml:"video_track_id" json:"video_track_id"`
	StreamID       string            `yaml:"stream_id" json:"stream_id"`
	ConnectTimeout time.Duration     `yaml:"connect_timeout" json:"connect_timeout"`
}

// ICEServerConfig ICE服务器配置
type ICEServerConfig struct {
	URLs       []string `yaml:"urls" json:"urls"`
	Username   string   `yaml:"username,omitempty" json:"username,omitempty"`
	Credential string   `yaml:"credential,omitempty" json:"credential,omitempty"`
}

// DefaultWebRTCConfig 返回默认的WebRTC配置
func DefaultWebRTCConfig() *WebRTCConfig {
	config := &WebRTCConfig{}
	config.SetDefaults()
	return config
}

// SetDefaults 设置默认值
func (c *WebRTCConfig) SetDefaults() {
	// 默认ICE服务器配置（公共STUN服务器，与原始部署一致）
	c.ICEServers = []ICEServerConfig{
		{
			URLs: []string{"stun:stun.l.google.com:19302"},
		},
		{
			URLs: []string{"stun:global.stun.twilio.com:3478"},
		},
	}

	c.VideoTrackID = "eye"
	c.StreamID = "camera"

	// 零值表示无限等待，由信令层的行为决定
	c.ConnectTimeout = 0
}

// Validate 验证配置
func (c *WebRTCConfig) Validate() error {
	if c.VideoTrackID == "" {
		return fmt.Errorf("video track id cannot be empty")
	}

	if c.StreamID == "" {
		return fmt.Errorf("stream id cannot be empty")
	}

	if len(c.ICEServers) == 0 {
		return fmt.Errorf("at least one ICE server must be configured")
	}

	for i, server := range c.ICEServers {
		if err := validateICEServer(&server); err != nil {
			return fmt.Errorf("invalid ICE server %d: %w", i, err)
		}
	}

	if c.ConnectTimeout < 0 {
		return fmt.Errorf("connect timeout cannot be negative")
	}

	return nil
}

// validateICEServer 验证单个ICE服务器配置
func validateICEServer(server *ICEServerConfig) error {
	if len(server.URLs) == 0 {
		return fmt.Errorf("ICE server must have at least one URL")
	}

	for _, rawURL := range server.URLs {
		if !strings.HasPrefix(rawURL, "stun:") &&
			!strings.HasPrefix(rawURL, "stuns:") &&
			!strings.HasPrefix(rawURL, "turn:") &&
			!strings.HasPrefix(rawURL, "turns:") {
			return fmt.Errorf("invalid ICE server URL scheme: %s", rawURL)
		}

		// TURN服务器需要认证信息
		if strings.HasPrefix(rawURL, "turn:") || strings.HasPrefix(rawURL, "turns:") {
			if server.Username == "" || server.Credential == "" {
				return fmt.Errorf("TURN server requires username and credential: %s", rawURL)
			}
		}
	}

	return nil
}
