package config

import (
	"fmt"
)

// Supported sink codecs. The WebRTC sink only accepts H264; other values
// disable the sink at construction time rather than failing the process.
const (
	CodecH264 = "h264"
)

// First-frame duration baseline modes. The historical behavior seeded the
// last-timestamp field with zero, so the first frame reports a duration equal
// to its absolute capture timestamp. That behavior is kept as the default;
// "first_frame_zero" makes the first frame report a zero duration instead.
const (
	BaselineZero           = "zero"
	BaselineFirstFrameZero = "first_frame_zero"
)

// SinkConfig WebRTC输出模块配置
type SinkConfig struct {
	// Codec 视频编码格式，目前仅支持 h264
	Codec string `yaml:"codec" json:"codec"`

	// RendezvousName 会合名称，用于在信令命名空间中匹配远端
	RendezvousName string `yaml:"rendezvous_name" json:"rendezvous_name"`

	// FirstFrameBaseline 首帧时长基线模式 (zero, first_frame_zero)
	FirstFrameBaseline string `yaml:"first_frame_baseline" json:"first_frame_baseline"`
}

// DefaultSinkConfig 返回默认输出配置
func DefaultSinkConfig() *SinkConfig {
	return &SinkConfig{
		Codec:              CodecH264,
		RendezvousName:     "eyecam",
		FirstFrameBaseline: BaselineZero,
	}
}

// Validate 验证输出配置
func (c *SinkConfig) Validate() error {
	if c.Codec == "" {
		return fmt.Errorf("codec cannot be empty")
	}

	if c.RendezvousName == "" {
		return fmt.Errorf("rendezvous name cannot be empty")
	}

	switch c.FirstFrameBaseline {
	case BaselineZero, BaselineFirstFrameZero:
	case "":
		c.FirstFrameBaseline = BaselineZero
	default:
		return fmt.Errorf("invalid first frame baseline: %s (must be '%s' or '%s')",
			c.FirstFrameBaseline, BaselineZero, BaselineFirstFrameZero)
	}

	return nil
}
