package signaling

import (
	"encoding/json"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMessage_Session(t *testing.T) {
	payload := []byte(`{"type":"offer","sdp":"v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\n"}`)

	message, err := DecodeMessage(payload)
	require.NoError(t, err)
	assert.Equal(t, MessageKindSession, message.Kind)
	require.NotNil(t, message.Session)
	assert.Equal(t, webrtc.SDPTypeOffer, message.Session.Type)
	assert.Contains(t, message.Session.SDP, "v=0")
}

func TestDecodeMessage_Candidate(t *testing.T) {
	payload := []byte(`{"type":"candidate","candidate":{"candidate":"candidate:1 1 UDP 2122252543 192.0.2.1 54400 typ host","sdpMid":"0","sdpMLineIndex":0}}`)

	message, err := DecodeMessage(payload)
	require.NoError(t, err)
	assert.Equal(t, MessageKindCandidate, message.Kind)
	require.NotNil(t, message.Candidate)
	assert.Contains(t, message.Candidate.Candidate, "typ host")
	require.NotNil(t, message.Candidate.SDPMid)
	assert.Equal(t, "0", *message.Candidate.SDPMid)
}

func TestDecodeMessage_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", "hoy"},
		{"unknown shape", `{"type":"ping"}`},
		{"bad candidate", `{"candidate":42}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeMessage([]byte(tt.payload))
			assert.Error(t, err)
		})
	}
}

func TestEncodeSession_RoundTripsThroughDecode(t *testing.T) {
	desc := &webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  "v=0\r\n",
	}

	payload, err := EncodeSession(desc)
	require.NoError(t, err)

	message, err := DecodeMessage(payload)
	require.NoError(t, err)
	assert.Equal(t, MessageKindSession, message.Kind)
	assert.Equal(t, webrtc.SDPTypeAnswer, message.Session.Type)
}

func TestEncodeCandidate_NilMarksEndOfCandidates(t *testing.T) {
	payload, err := EncodeCandidate(nil)
	require.NoError(t, err)

	var envelope map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(payload, &envelope))
	require.Contains(t, envelope, "candidate")

	message, err := DecodeMessage(payload)
	require.NoError(t, err)
	assert.Equal(t, MessageKindCandidate, message.Kind)
	assert.Empty(t, message.Candidate.Candidate)
}
