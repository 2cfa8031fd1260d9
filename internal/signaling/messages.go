package signaling

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// MessageKind 信令消息类别
type MessageKind int

const (
	MessageKindUnknown MessageKind = iota
	MessageKindSession
	MessageKindCandidate
)

// Message 经由信令代理中转的一条消息。
// 线上格式与浏览器端保持一致：会话描述消息就是 RTCSessionDescription 本身的
// JSON；候选消息是 {"type":"candidate","candidate":{...}} 包装。
type Message struct {
	Kind      MessageKind
	Session   *webrtc.SessionDescription
	Candidate *webrtc.ICECandidateInit
}

// candidateEnvelope 候选消息的线上包装
type candidateEnvelope struct {
	Type      string                  `json:"type"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

// DecodeMessage 对原始代理载荷分类解析。
// 含 "sdp" 字段的载荷按会话描述处理，含 "candidate" 字段的按ICE候选处理，
// 其余载荷报错由调用方记录后忽略。
func DecodeMessage(data []byte) (*Message, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("invalid JSON signal: %w", err)
	}

	if _, ok := probe["sdp"]; ok {
		var desc webrtc.SessionDescription
		if err := json.Unmarshal(data, &desc); err != nil {
			return nil, fmt.Errorf("invalid SDP signal: %w", err)
		}
		return &Message{Kind: MessageKindSession, Session: &desc}, nil
	}

	if raw, ok := probe["candidate"]; ok {
		var candidate webrtc.ICECandidateInit
		if err := json.Unmarshal(raw, &candidate); err != nil {
			return nil, fmt.Errorf("invalid candidate signal: %w", err)
		}
		return &Message{Kind: MessageKindCandidate, Candidate: &candidate}, nil
	}

	return nil, fmt.Errorf("unknown signal format")
}

// EncodeSession 编码会话描述消息
func EncodeSession(desc *webrtc.SessionDescription) ([]byte, error) {
	if desc == nil {
		return nil, fmt.Errorf("session description is nil")
	}
	return json.Marshal(desc)
}

// EncodeCandidate 编码ICE候选消息。nil 候选表示候选收集结束，
// 编码为空候选以通知远端。
func EncodeCandidate(candidate *webrtc.ICECandidate) ([]byte, error) {
	if candidate == nil {
		return json.Marshal(candidateEnvelope{
			Type: "candidate",
			Candidate: webrtc.ICECandidateInit{
				Candidate:     "",
				SDPMid:        stringPtr("0"),
				SDPMLineIndex: uint16Ptr(0),
			},
		})
	}

	return json.Marshal(candidateEnvelope{
		Type:      "candidate",
		Candidate: candidate.ToJSON(),
	})
}

func stringPtr(s string) *string { return &s }

func uint16Ptr(v uint16) *uint16 { return &v }
