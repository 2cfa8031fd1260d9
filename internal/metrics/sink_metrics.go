package metrics

// SinkMetrics 视频输出链路的指标收集器
type SinkMetrics struct {
	metrics Metrics

	// 连接指标
	connectionState Gauge // 连接状态 (0=waiting, 1=connected, 2=failed)

	// 帧传输指标
	framesForwarded Counter // 成功转发的帧数
	framesFailed    Counter // 发送失败的帧数
	framesDiscarded Counter // sink被禁用时丢弃的帧数
	bytesForwarded  Counter // 转发字节数
	nalUnitsWritten Counter // 写入轨道的NAL单元数

	// 帧时长分布（微秒）
	frameDuration Histogram

	// 控制通道指标
	controlMessages Counter // 收到的控制消息数
}

// Sink connection state gauge values.
const (
	ConnStateWaiting   = 0
	ConnStateConnected = 1
	ConnStateFailed    = 2
)

// NewSinkMetrics 创建输出链路指标收集器
func NewSinkMetrics(metrics Metrics) (*SinkMetrics, error) {
	sm := &SinkMetrics{
		metrics: metrics,
	}

	var err error

	sm.connectionState, err = metrics.RegisterGauge(
		"eyecam_connection_state",
		"Peer connection state (0=waiting, 1=connected, 2=failed)",
		[]string{"rendezvous"},
	)
	if err != nil {
		return nil, err
	}

	sm.framesForwarded, err = metrics.RegisterCounter(
		"eyecam_frames_forwarded_total",
		"Number of video frames forwarded to the peer connection",
		[]string{"rendezvous"},
	)
	if err != nil {
		return nil, err
	}

	sm.framesFailed, err = metrics.RegisterCounter(
		"eyecam_frames_failed_total",
		"Number of video frames that failed to transmit",
		[]string{"rendezvous"},
	)
	if err != nil {
		return nil, err
	}

	sm.framesDiscarded, err = metrics.RegisterCounter(
		"eyecam_frames_discarded_total",
		"Number of video frames discarded while the sink was disabled",
		[]string{"rendezvous"},
	)
	if err != nil {
		return nil, err
	}

	sm.bytesForwarded, err = metrics.RegisterCounter(
		"eyecam_bytes_forwarded_total",
		"Number of video payload bytes forwarded to the peer connection",
		[]string{"rendezvous"},
	)
	if err != nil {
		return nil, err
	}

	sm.nalUnitsWritten, err = metrics.RegisterCounter(
		"eyecam_nal_units_written_total",
		"Number of H264 NAL units written to the video track",
		[]string{"rendezvous"},
	)
	if err != nil {
		return nil, err
	}

	sm.frameDuration, err = metrics.RegisterHistogram(
		"eyecam_frame_duration_microseconds",
		"Distribution of inter-frame durations in microseconds",
		[]string{"rendezvous"},
		[]float64{8333, 16666, 33333, 40000, 66666, 100000, 200000, 500000},
	)
	if err != nil {
		return nil, err
	}

	sm.controlMessages, err = metrics.RegisterCounter(
		"eyecam_control_messages_total",
		"Number of control messages received on the data channel",
		[]string{"rendezvous"},
	)
	if err != nil {
		return nil, err
	}

	return sm, nil
}

// SetConnectionState 更新连接状态
func (sm *SinkMetrics) SetConnectionState(rendezvous string, state int) {
	sm.connectionState.Set(float64(state), rendezvous)
}

// RecordFrameForwarded 记录一次成功的帧转发
func (sm *SinkMetrics) RecordFrameForwarded(rendezvous string, bytes int, durationUs int64) {
	sm.framesForwarded.Inc(rendezvous)
	sm.bytesForwarded.Add(float64(bytes), rendezvous)
	sm.frameDuration.Observe(float64(durationUs), rendezvous)
}

// RecordFrameFailed 记录一次发送失败
func (sm *SinkMetrics) RecordFrameFailed(rendezvous string) {
	sm.framesFailed.Inc(rendezvous)
}

// RecordFrameDiscarded 记录一次禁用状态下的丢帧
func (sm *SinkMetrics) RecordFrameDiscarded(rendezvous string) {
	sm.framesDiscarded.Inc(rendezvous)
}

// RecordNALUnits 记录写入轨道的NAL单元数
func (sm *SinkMetrics) RecordNALUnits(rendezvous string, count int) {
	sm.nalUnitsWritten.Add(float64(count), rendezvous)
}

// RecordControlMessage 记录一次控制消息
func (sm *SinkMetrics) RecordControlMessage(rendezvous string) {
	sm.controlMessages.Inc(rendezvous)
}
