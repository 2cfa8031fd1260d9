package transport

import (
	"context"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/open-beagle/eyecam-webrtc/internal/signaling"
)

// WaitForConnection 阻塞等待名为 name 的会合点上出现远端并完成协商。
// 流程：打开信令通道 → 等待远端offer → 应答并双向trickle ICE →
// 等待ICE进入connected。成功返回nil；远端判定无法接入（ICE
// failed/closed/disconnected、信令通道终止、上下文取消）返回错误。
// 本方法不做任何内部重试，失败处置完全由调用方决定。
func (s *Session) WaitForConnection(ctx context.Context, name string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.signal != nil {
		s.mu.Unlock()
		return fmt.Errorf("negotiation already started")
	}
	signal := signaling.NewClient(s.signalingCfg, name)
	s.signal = signal
	s.mu.Unlock()

	// 超时只约束协商等待本身。信令客户端的生命周期跟随调用方的ctx，
	// 协商成功后还要继续承载trickle候选与重协商信令
	waitCtx := ctx
	if s.webrtcCfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, s.webrtcCfg.ConnectTimeout)
		defer cancel()
	}

	if err := signal.Open(ctx); err != nil {
		return fmt.Errorf("signaling channel failed: %w", err)
	}

	offer, err := s.initialOffer(waitCtx, signal)
	if err != nil {
		return err
	}

	s.registerStateHandlers()

	// 本端新候选出现即trickle给对端
	s.pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		payload, err := signaling.EncodeCandidate(candidate)
		if err != nil {
			s.logger.Errorf("Invalid outgoing ICE candidate: %v", err)
			return
		}
		if err := signal.SendPayload(payload); err != nil {
			s.logger.Errorf("Failed to signal ICE candidate: %v", err)
		}
	})

	// 后续信令（更新的描述、对端候选）在协商完成后继续消费
	go s.consumeSignals(signal)

	if err := s.pc.SetRemoteDescription(*offer); err != nil {
		return fmt.Errorf("failed to set remote description: %w", err)
	}

	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("failed to create answer: %w", err)
	}

	if err := s.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("failed to set local description: %w", err)
	}

	local := s.pc.LocalDescription()
	if local == nil {
		return fmt.Errorf("no local description after answer")
	}

	payload, err := signaling.EncodeSession(local)
	if err != nil {
		return fmt.Errorf("failed to encode answer: %w", err)
	}
	if err := signal.SendPayload(payload); err != nil {
		return fmt.Errorf("failed to send answer: %w", err)
	}

	select {
	case <-waitCtx.Done():
		return fmt.Errorf("negotiation aborted: %w", waitCtx.Err())
	case state := <-s.stateCh:
		s.logger.Infof("RTC state: %s", state)
		if state != webrtc.ICEConnectionStateConnected {
			return fmt.Errorf("peer failed to connect (ICE state: %s)", state)
		}
	}

	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()

	s.logger.Info("Peer connected")
	return nil
}

// initialOffer 等待信令通道上出现第一条会话描述
func (s *Session) initialOffer(ctx context.Context, signal *signaling.Client) (*webrtc.SessionDescription, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("negotiation aborted: %w", ctx.Err())
		case message, ok := <-signal.Incoming():
			if !ok {
				return nil, fmt.Errorf("signaling channel terminated before offer")
			}
			if message.Kind == signaling.MessageKindSession {
				return message.Session, nil
			}
			// offer之前到达的候选留待连接建立后没有意义，忽略
		}
	}
}

// registerStateHandlers 挂接ICE与连接状态回调
func (s *Session) registerStateHandlers() {
	s.pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		s.logger.Infof("ICE connection state changed: %s", state)

		switch state {
		case webrtc.ICEConnectionStateConnected,
			webrtc.ICEConnectionStateFailed,
			webrtc.ICEConnectionStateClosed,
			webrtc.ICEConnectionStateDisconnected:
			select {
			case s.stateCh <- state:
			default:
			}
		}
	})

	s.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.logger.Infof("Peer connection state changed: %s", state)

		if state == webrtc.PeerConnectionStateDisconnected ||
			state == webrtc.PeerConnectionStateFailed {
			s.mu.Lock()
			wasConnected := s.connected
			fn := s.onPeerGone
			s.mu.Unlock()

			if wasConnected && fn != nil {
				fn(state)
			}
		}
	})
}

// consumeSignals 处理协商完成后陆续到达的信令
func (s *Session) consumeSignals(signal *signaling.Client) {
	for message := range signal.Incoming() {
		switch message.Kind {
		case signaling.MessageKindSession:
			if err := s.pc.SetRemoteDescription(*message.Session); err != nil {
				s.logger.Errorf("Failed to update remote description: %v", err)
			}
		case signaling.MessageKindCandidate:
			if message.Candidate.Candidate == "" {
				// 空候选表示对端收集完毕
				continue
			}
			if err := s.pc.AddICECandidate(*message.Candidate); err != nil {
				s.logger.Errorf("Failed to add ICE candidate: %v", err)
			}
		}
	}
	s.logger.Debug("Signal consumer exiting")
}
