package config

import (
	"fmt"
)

// SourceConfig H264输入源配置
type SourceConfig struct {
	// Path H264裸流文件或FIFO管道路径，"-" 表示标准输入
	Path string `yaml:"path" json:"path"`

	// FrameRate 标称帧率，用于合成采集时间戳
	FrameRate int `yaml:"framerate" json:"framerate"`
}

// DefaultSourceConfig 返回默认输入源配置
func DefaultSourceConfig() *SourceConfig {
	return &SourceConfig{
		Path:      "-",
		FrameRate: 30,
	}
}

// Validate 验证输入源配置
func (c *SourceConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("source path cannot be empty")
	}

	if c.FrameRate <= 0 || c.FrameRate > 240 {
		return fmt.Errorf("invalid framerate: %d (must be between 1 and 240)", c.FrameRate)
	}

	return nil
}
