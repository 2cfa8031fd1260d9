package sink

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/open-beagle/eyecam-webrtc/internal/config"
	"github.com/open-beagle/eyecam-webrtc/internal/metrics"
)

// Sink 编码器输出缓冲的投递目标
type Sink interface {
	// Start 完成投递前的准备（对WebRTC sink而言是阻塞的连接协商）
	Start(ctx context.Context) error

	// WriteFrame 投递一帧编码数据。flags 为保留的每帧元数据位，当前未使用。
	// 单帧投递失败在sink内部吸收，不向调用方传播。
	WriteFrame(payload []byte, timestampUs int64, flags uint32)

	// Close 释放sink持有的资源
	Close() error
}

// VideoSession sink所驱动的传输会话
type VideoSession interface {
	// WaitForConnection 阻塞等待指定会合点上的远端接入
	WaitForConnection(ctx context.Context, name string) error

	// WriteVideo 转发一帧载荷及其帧间时长，返回写入的NAL单元数
	WriteVideo(payload []byte, durationUs int64) (int, error)

	// Close 释放会话，恰好调用一次
	Close() error
}

// State sink的生命周期状态
type State int

const (
	// StateUninitialized 已构造、尚未协商
	StateUninitialized State = iota

	// StateDisabled 编码格式不支持，sink永久成为空操作
	StateDisabled

	// StateStreaming 协商成功，逐帧转发中
	StateStreaming

	// StateFailed 协商失败
	StateFailed

	// StateClosed 已释放
	StateClosed
)

// String 返回状态名
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateDisabled:
		return "disabled"
	case StateStreaming:
		return "streaming"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// WebRTCSink 将编码器产出的视频帧经WebRTC对等连接投递给远端。
//
// 每次推流运行构造一次。构造时校验编码格式：不支持的格式使sink进入
// 禁用状态（软失败，区别于连接失败），支持则获取传输会话。Start 执行
// 阻塞的连接协商；此后上游每产出一帧调用一次 WriteFrame。帧间时长由
// 相邻两帧的采集时间戳作差得出，时间戳基线无论发送成败都无条件推进。
type WebRTCSink struct {
	cfg     *config.SinkConfig
	logger  *logrus.Entry
	session VideoSession
	metrics *metrics.SinkMetrics

	state           State
	lastTimestampUs int64
	firstFrame      bool
	released        bool
	mu              sync.Mutex
}

// NewWebRTCSink 构造WebRTC输出sink。
// 编码格式不支持时返回处于禁用状态的sink（而非错误）；
// 传输会话获取失败时整体构造失败，绝不带着空会话继续。
func NewWebRTCSink(cfg *config.SinkConfig, newSession func() (VideoSession, error)) (*WebRTCSink, error) {
	if cfg == nil {
		return nil, fmt.Errorf("sink config is required")
	}

	s := &WebRTCSink{
		cfg:        cfg,
		logger:     config.GetLoggerWithPrefix("webrtc-sink"),
		state:      StateUninitialized,
		firstFrame: true,
	}

	if cfg.Codec != config.CodecH264 {
		s.logger.Errorf("WebRTC sink only works with h264 for now (got %q): %v", cfg.Codec, ErrUnsupportedCodec)
		s.state = StateDisabled
		return s, nil
	}

	session, err := newSession()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire transport session: %w", err)
	}
	s.session = session

	return s, nil
}

// SetMetrics 挂接指标收集器（可选）
func (s *WebRTCSink) SetMetrics(sm *metrics.SinkMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = sm
}

// State 返回sink当前状态
func (s *WebRTCSink) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start 执行阻塞的连接协商。
// 禁用状态下为空操作。协商失败时sink进入失败状态并返回 *ConnectionError；
// 是否据此终止进程由调用方决定，sink自身不退出也不重试。
func (s *WebRTCSink) Start(ctx context.Context) error {
	s.mu.Lock()
	state := s.state
	m := s.metrics
	s.mu.Unlock()

	switch state {
	case StateDisabled:
		return nil
	case StateUninitialized:
	default:
		return fmt.Errorf("sink cannot start from state %s", state)
	}

	if m != nil {
		m.SetConnectionState(s.cfg.RendezvousName, metrics.ConnStateWaiting)
	}

	s.logger.Infof("Waiting for RTC connection (namespace: %s)", s.cfg.RendezvousName)

	if err := s.session.WaitForConnection(ctx, s.cfg.RendezvousName); err != nil {
		s.mu.Lock()
		s.state = StateFailed
		s.mu.Unlock()

		if m != nil {
			m.SetConnectionState(s.cfg.RendezvousName, metrics.ConnStateFailed)
		}

		return &ConnectionError{Rendezvous: s.cfg.RendezvousName, Reason: err}
	}

	s.mu.Lock()
	s.state = StateStreaming
	s.mu.Unlock()

	if m != nil {
		m.SetConnectionState(s.cfg.RendezvousName, metrics.ConnStateConnected)
	}

	s.logger.Info("Connected")
	return nil
}

// WriteFrame 投递一帧编码数据。
//
// 帧间时长 = 当前时间戳 - 上一帧时间戳。历史行为将基线初始化为零，
// 因此首帧的时长等于其绝对采集时间戳；first_frame_zero 模式下首帧
// 时长为零。无论传输成败，时间戳基线都推进到当前帧，保证后续帧的
// 时长始终相对真实的上一帧计算。单帧发送失败记录错误后继续推流。
func (s *WebRTCSink) WriteFrame(payload []byte, timestampUs int64, _ uint32) {
	s.mu.Lock()
	m := s.metrics

	if s.state != StateStreaming {
		state := s.state
		s.mu.Unlock()

		if state == StateDisabled && m != nil {
			m.RecordFrameDiscarded(s.cfg.RendezvousName)
		}
		return
	}

	durationUs := timestampUs - s.lastTimestampUs
	if s.firstFrame && s.cfg.FirstFrameBaseline == config.BaselineFirstFrameZero {
		durationUs = 0
	}

	s.lastTimestampUs = timestampUs
	s.firstFrame = false
	session := s.session
	s.mu.Unlock()

	nalCount, err := session.WriteVideo(payload, durationUs)
	if err != nil {
		s.logger.Errorf("Failed to send samples: %v", err)
		if m != nil {
			m.RecordFrameFailed(s.cfg.RendezvousName)
		}
		return
	}

	if m != nil {
		m.RecordFrameForwarded(s.cfg.RendezvousName, len(payload), durationUs)
		m.RecordNALUnits(s.cfg.RendezvousName, nalCount)
	}
}

// Close 释放sink及其传输会话。
// 会话恰好释放一次；重复Close为空操作。禁用状态下没有会话可释放。
func (s *WebRTCSink) Close() error {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return nil
	}
	s.released = true
	s.state = StateClosed
	session := s.session
	s.mu.Unlock()

	if session == nil {
		return nil
	}

	if err := session.Close(); err != nil {
		return fmt.Errorf("failed to release session: %w", err)
	}
	return nil
}
