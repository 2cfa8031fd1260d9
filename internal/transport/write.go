package transport

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/h264reader"
)

// SplitNALUnits 将一段Annex-B载荷拆分为NAL单元。
// 空载荷或不含完整NAL的载荷返回空切片，不算错误。
func SplitNALUnits(payload []byte) ([][]byte, error) {
	if len(payload) == 0 {
		return nil, nil
	}

	reader, err := h264reader.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to open NAL reader: %w", err)
	}

	var units [][]byte
	for {
		nal, err := reader.NextNAL()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return units, nil
			}
			return units, fmt.Errorf("failed to parse NAL unit: %w", err)
		}
		units = append(units, nal.Data)
	}
}

// WriteVideo 将一帧编码载荷转发到已连接的会话。
// 载荷按NAL单元拆分后逐个写入视频轨道，每个样本携带整帧时长。
// 无缓冲、无重试、无重排；每次调用对应恰好一轮传输层写入。
// 返回写入的NAL单元数；传输层错误原样返回，由调用方决定严重性。
func (s *Session) WriteVideo(payload []byte, durationUs int64) (int, error) {
	if !s.isConnected() {
		return 0, ErrNotConnected
	}

	units, err := SplitNALUnits(payload)
	if err != nil {
		return 0, err
	}

	duration := time.Duration(durationUs) * time.Microsecond

	for i, unit := range units {
		sample := media.Sample{
			Data:     unit,
			Duration: duration,
		}
		if err := s.videoTrack.WriteSample(sample); err != nil {
			return i, fmt.Errorf("failed to write sample: %w", err)
		}
	}

	return len(units), nil
}
