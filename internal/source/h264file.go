package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/pion/webrtc/v4/pkg/media/h264reader"
	"github.com/sirupsen/logrus"

	"github.com/open-beagle/eyecam-webrtc/internal/config"
)

// FrameHandler 接收一帧编码数据及其采集时间戳（微秒）。
// flags 为保留的每帧元数据位。
type FrameHandler func(payload []byte, timestampUs int64, flags uint32)

// annexBPrefix 重组访问单元时补回的起始码
var annexBPrefix = []byte{0x00, 0x00, 0x00, 0x01}

// H264FileSource 从H264裸流文件或FIFO管道读取访问单元，按标称帧率
// 配合合成的单调时间戳投递给处理函数。作为上游编码器
// （rpicam-vid 一类）的替身驱动整条输出链路。
type H264FileSource struct {
	cfg     *config.SourceConfig
	logger  *logrus.Entry
	handler FrameHandler

	cancel  context.CancelFunc
	done    chan struct{}
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewH264FileSource 创建输入源
func NewH264FileSource(cfg *config.SourceConfig) (*H264FileSource, error) {
	if cfg == nil {
		return nil, fmt.Errorf("source config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &H264FileSource{
		cfg:    cfg,
		logger: config.GetLoggerWithPrefix("h264-source"),
	}, nil
}

// Start 打开输入并启动投递循环。帧按顺序投递，与读取顺序一致。
func (s *H264FileSource) Start(ctx context.Context, handler FrameHandler) error {
	if handler == nil {
		return fmt.Errorf("frame handler is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("source already running")
	}

	var in io.ReadCloser
	if s.cfg.Path == "-" {
		in = os.Stdin
	} else {
		file, err := os.Open(s.cfg.Path)
		if err != nil {
			return fmt.Errorf("failed to open source %s: %w", s.cfg.Path, err)
		}
		in = file
	}

	reader, err := h264reader.NewReader(in)
	if err != nil {
		if in != os.Stdin {
			in.Close()
		}
		return fmt.Errorf("failed to open H264 reader: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.handler = handler
	s.running = true
	s.done = make(chan struct{})

	s.wg.Add(1)
	go s.deliverLoop(runCtx, reader, in)

	s.logger.Infof("H264 source started (path: %s, framerate: %d)", s.cfg.Path, s.cfg.FrameRate)
	return nil
}

// deliverLoop 按帧率节拍读取访问单元并投递。
// 使用ticker而非sleep，避免解析耗时累积成时钟偏移。
func (s *H264FileSource) deliverLoop(ctx context.Context, reader *h264reader.H264Reader, in io.ReadCloser) {
	defer s.wg.Done()
	defer close(s.done)
	defer func() {
		if in != os.Stdin {
			in.Close()
		}
	}()

	// NextNAL 是普通阻塞读：上游静默（FIFO写端存活但无数据）时
	// 只有关闭输入才能解除阻塞，否则 Stop 会卡在循环退出上
	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			in.Close()
		case <-stopped:
		}
	}()

	frameIntervalUs := int64(time.Second/time.Microsecond) / int64(s.cfg.FrameRate)
	ticker := time.NewTicker(time.Duration(frameIntervalUs) * time.Microsecond)
	defer ticker.Stop()

	var frameIndex int64

	for {
		payload, err := s.nextAccessUnit(reader)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				// 取消时主动关闭输入造成的读错误属于正常停止
			case errors.Is(err, io.EOF):
				s.logger.Info("H264 source reached end of stream")
			default:
				s.logger.Errorf("H264 source read error: %v", err)
			}
			return
		}

		timestampUs := frameIndex * frameIntervalUs
		s.handler(payload, timestampUs, 0)
		frameIndex++

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// nextAccessUnit 聚合下一个访问单元：参数集与SEI随后续的VCL NAL
// 归入同一帧，直到遇到切片NAL为止。返回补好起始码的Annex-B载荷。
func (s *H264FileSource) nextAccessUnit(reader *h264reader.H264Reader) ([]byte, error) {
	var unit []byte

	for {
		nal, err := reader.NextNAL()
		if err != nil {
			if errors.Is(err, io.EOF) && len(unit) > 0 {
				return unit, nil
			}
			return nil, err
		}

		unit = append(unit, annexBPrefix...)
		unit = append(unit, nal.Data...)

		if isVCL(nal.UnitType) {
			return unit, nil
		}
	}
}

// isVCL 判断NAL类型是否为切片数据（访问单元边界）
func isVCL(t h264reader.NalUnitType) bool {
	switch t {
	case h264reader.NalUnitTypeCodedSliceNonIdr,
		h264reader.NalUnitTypeCodedSliceDataPartitionA,
		h264reader.NalUnitTypeCodedSliceDataPartitionB,
		h264reader.NalUnitTypeCodedSliceDataPartitionC,
		h264reader.NalUnitTypeCodedSliceIdr:
		return true
	default:
		return false
	}
}

// Done 返回投递循环结束（流尾或Stop）时关闭的通道。
// Start 之前为nil。
func (s *H264FileSource) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Stop 停止投递并关闭输入
func (s *H264FileSource) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()

	s.logger.Info("H264 source stopped")
	return nil
}
