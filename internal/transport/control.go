package transport

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/pion/webrtc/v4"
)

// controlMessageSize 控制消息定长8字节：小端 float32 y、float32 x
const controlMessageSize = 8

// setupControlChannel 建立预协商的"position"控制数据通道。
// 与远端约定 negotiated id=1、无序、不重传——云台控制只关心最新位置，
// 旧消息重传没有价值。
func (s *Session) setupControlChannel() error {
	ordered := false
	maxRetransmits := uint16(0)
	negotiated := true
	channelID := uint16(1)

	control, err := s.pc.CreateDataChannel("position", &webrtc.DataChannelInit{
		Ordered:        &ordered,
		MaxRetransmits: &maxRetransmits,
		Negotiated:     &negotiated,
		ID:             &channelID,
	})
	if err != nil {
		return fmt.Errorf("failed to create control channel: %w", err)
	}
	s.control = control

	control.OnOpen(func() {
		s.logger.Info("Control channel open")
	})

	control.OnClose(func() {
		s.logger.Warn("Control channel closed")

		s.mu.Lock()
		fn := s.onControlClosed
		closed := s.closed
		s.mu.Unlock()

		if !closed && fn != nil {
			fn()
		}
	})

	control.OnMessage(func(msg webrtc.DataChannelMessage) {
		s.handleControlMessage(msg.Data)
	})

	return nil
}

// handleControlMessage 解码一条云台位置消息并分发给回调
func (s *Session) handleControlMessage(data []byte) {
	if len(data) < controlMessageSize {
		s.logger.Warnf("Short control message: %d bytes", len(data))
		return
	}

	y := math.Float32frombits(binary.LittleEndian.Uint32(data[0:4]))
	x := math.Float32frombits(binary.LittleEndian.Uint32(data[4:8]))

	s.logger.Tracef("Control message: x=%.4f y=%.4f", x, y)

	s.mu.Lock()
	fn := s.onControl
	s.mu.Unlock()

	if fn != nil {
		fn(x, y)
	}
}
