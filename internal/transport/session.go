package transport

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"

	"github.com/open-beagle/eyecam-webrtc/internal/config"
	"github.com/open-beagle/eyecam-webrtc/internal/signaling"
)

var (
	// ErrSessionClosed 会话已被释放
	ErrSessionClosed = errors.New("session is closed")

	// ErrNotConnected 会话尚未完成连接协商
	ErrNotConnected = errors.New("session is not connected")
)

// Session 一次推流运行的传输上下文。
// 独占持有 PeerConnection、H264视频轨道、控制数据通道与信令客户端，
// 由创建方负责在运行结束时恰好调用一次 Close 释放。
type Session struct {
	webrtcCfg    *config.WebRTCConfig
	signalingCfg *config.SignalingConfig
	logger       *logrus.Entry

	pc         *webrtc.PeerConnection
	videoTrack *webrtc.TrackLocalStaticSample
	control    *webrtc.DataChannel
	signal     *signaling.Client

	// ICE状态变更通知，协商期间消费
	stateCh chan webrtc.ICEConnectionState

	onControl       func(x, y float32)
	onControlClosed func()
	onPeerGone      func(state webrtc.PeerConnectionState)

	connected bool
	closed    bool
	mu        sync.Mutex
}

// NewSession 分配一次推流运行的传输会话。
// 任何一步分配失败都会回收已创建的资源并返回错误，绝不返回半初始化的会话。
func NewSession(webrtcCfg *config.WebRTCConfig, signalingCfg *config.SignalingConfig) (*Session, error) {
	if webrtcCfg == nil || signalingCfg == nil {
		return nil, fmt.Errorf("webrtc and signaling configs are required")
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("failed to register codecs: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, fmt.Errorf("failed to register interceptors: %w", err)
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
	)

	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: toICEServers(webrtcCfg.ICEServers),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	s := &Session{
		webrtcCfg:    webrtcCfg,
		signalingCfg: signalingCfg,
		logger:       config.GetLoggerWithPrefix("transport-session"),
		pc:           pc,
		stateCh:      make(chan webrtc.ICEConnectionState, 1),
	}

	videoTrack, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264},
		webrtcCfg.VideoTrackID,
		webrtcCfg.StreamID,
	)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("failed to create video track: %w", err)
	}
	s.videoTrack = videoTrack

	rtpSender, err := pc.AddTrack(videoTrack)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("failed to add video track: %w", err)
	}

	// RTCP必须被持续读取，拦截器（NACK等）才能工作
	go func() {
		rtcpBuf := make([]byte, 2048)
		for {
			if _, _, err := rtpSender.Read(rtcpBuf); err != nil {
				return
			}
		}
	}()

	if err := s.setupControlChannel(); err != nil {
		pc.Close()
		return nil, err
	}

	s.logger.Debug("Transport session allocated")
	return s, nil
}

// toICEServers 转换配置中的ICE服务器列表
func toICEServers(servers []config.ICEServerConfig) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(servers))
	for _, server := range servers {
		ice := webrtc.ICEServer{
			URLs:     server.URLs,
			Username: server.Username,
		}
		if server.Credential != "" {
			ice.Credential = server.Credential
		}
		out = append(out, ice)
	}
	return out
}

// OnControl 注册控制消息回调（云台的归一化x/y）
func (s *Session) OnControl(fn func(x, y float32)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onControl = fn
}

// OnControlClosed 注册控制通道关闭回调
func (s *Session) OnControlClosed(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onControlClosed = fn
}

// OnPeerGone 注册对端连接丢失回调
func (s *Session) OnPeerGone(fn func(state webrtc.PeerConnectionState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onPeerGone = fn
}

// isConnected 返回协商是否已成功
func (s *Session) isConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected && !s.closed
}

// Close 释放会话持有的全部传输资源。
// 必须恰好调用一次；重复调用返回 ErrSessionClosed。
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.closed = true
	s.connected = false
	signal := s.signal
	s.signal = nil
	s.mu.Unlock()

	var errs []error

	if signal != nil {
		if err := signal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("signaling close: %w", err))
		}
	}

	if s.control != nil {
		if err := s.control.Close(); err != nil {
			errs = append(errs, fmt.Errorf("control channel close: %w", err))
		}
	}

	if err := s.pc.Close(); err != nil {
		errs = append(errs, fmt.Errorf("peer connection close: %w", err))
	}

	s.logger.Debug("Transport session released")
	return errors.Join(errs...)
}
