package sink

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-beagle/eyecam-webrtc/internal/config"
	"github.com/open-beagle/eyecam-webrtc/internal/metrics"
)

// fakeWrite 记录一次传输层写入
type fakeWrite struct {
	payload    []byte
	durationUs int64
}

// fakeSession 测试用的传输会话替身
type fakeSession struct {
	connectErr   error
	connectCalls int
	connectName  string

	writeErrs map[int]error // 按写入序号注入错误
	writes    []fakeWrite

	closeCalls int
}

func (f *fakeSession) WaitForConnection(_ context.Context, name string) error {
	f.connectCalls++
	f.connectName = name
	return f.connectErr
}

func (f *fakeSession) WriteVideo(payload []byte, durationUs int64) (int, error) {
	index := len(f.writes)
	f.writes = append(f.writes, fakeWrite{payload: payload, durationUs: durationUs})
	if err, ok := f.writeErrs[index]; ok {
		return 0, err
	}
	return 1, nil
}

func (f *fakeSession) Close() error {
	f.closeCalls++
	if f.closeCalls > 1 {
		return errors.New("session closed twice")
	}
	return nil
}

func newTestSink(t *testing.T, cfg *config.SinkConfig, session *fakeSession) *WebRTCSink {
	t.Helper()

	factoryCalls := 0
	s, err := NewWebRTCSink(cfg, func() (VideoSession, error) {
		factoryCalls++
		return session, nil
	})
	require.NoError(t, err)

	if cfg.Codec != config.CodecH264 {
		require.Equal(t, 0, factoryCalls, "disabled sink must not acquire a session")
	}
	return s
}

func streamingSink(t *testing.T, session *fakeSession) *WebRTCSink {
	t.Helper()

	s := newTestSink(t, config.DefaultSinkConfig(), session)
	require.NoError(t, s.Start(context.Background()))
	require.Equal(t, StateStreaming, s.State())
	return s
}

func TestWebRTCSink_UnsupportedCodecDisablesSink(t *testing.T) {
	hook := logrustest.NewGlobal()
	logrus.SetLevel(logrus.ErrorLevel)

	session := &fakeSession{}
	cfg := &config.SinkConfig{
		Codec:              "mjpeg",
		RendezvousName:     "test",
		FirstFrameBaseline: config.BaselineZero,
	}

	s := newTestSink(t, cfg, session)
	assert.Equal(t, StateDisabled, s.State())

	// 禁用状态记录了一条错误日志
	require.NotEmpty(t, hook.Entries)
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)

	// Start 是空操作，协商从未发生
	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, 0, session.connectCalls)

	// 之后的每一帧都必须是零传输副作用的空操作
	for i := 0; i < 5; i++ {
		s.WriteFrame([]byte{0x00, 0x00, 0x00, 0x01, 0x65}, int64(i)*33000, 0)
	}
	assert.Empty(t, session.writes)
	assert.Equal(t, StateDisabled, s.State())

	require.NoError(t, s.Close())
}

func TestWebRTCSink_DurationIsDeltaFromPreviousTimestamp(t *testing.T) {
	session := &fakeSession{}
	s := streamingSink(t, session)
	defer s.Close()

	// t0=0, t1=33000, t2=66000 → d0=0, d1=33000, d2=33000
	s.WriteFrame([]byte{0x01}, 0, 0)
	s.WriteFrame([]byte{0x02}, 33000, 0)
	s.WriteFrame([]byte{0x03}, 66000, 0)

	require.Len(t, session.writes, 3)
	assert.Equal(t, int64(0), session.writes[0].durationUs)
	assert.Equal(t, int64(33000), session.writes[1].durationUs)
	assert.Equal(t, int64(33000), session.writes[2].durationUs)
}

func TestWebRTCSink_FirstFrameDurationEqualsAbsoluteTimestamp(t *testing.T) {
	// 历史行为：基线初始化为零，首帧时长等于其绝对采集时间戳
	session := &fakeSession{}
	s := streamingSink(t, session)
	defer s.Close()

	s.WriteFrame([]byte{0x01}, 5_000_000, 0)
	s.WriteFrame([]byte{0x02}, 5_033_000, 0)

	require.Len(t, session.writes, 2)
	assert.Equal(t, int64(5_000_000), session.writes[0].durationUs)
	assert.Equal(t, int64(33000), session.writes[1].durationUs)
}

func TestWebRTCSink_FirstFrameZeroBaselineMode(t *testing.T) {
	session := &fakeSession{}
	cfg := config.DefaultSinkConfig()
	cfg.FirstFrameBaseline = config.BaselineFirstFrameZero

	s := newTestSink(t, cfg, session)
	require.NoError(t, s.Start(context.Background()))
	defer s.Close()

	s.WriteFrame([]byte{0x01}, 5_000_000, 0)
	s.WriteFrame([]byte{0x02}, 5_033_000, 0)

	require.Len(t, session.writes, 2)
	assert.Equal(t, int64(0), session.writes[0].durationUs)
	assert.Equal(t, int64(33000), session.writes[1].durationUs)
}

func TestWebRTCSink_TimestampAdvancesOnTransmissionFailure(t *testing.T) {
	session := &fakeSession{
		writeErrs: map[int]error{1: errors.New("track write failed")},
	}
	s := streamingSink(t, session)
	defer s.Close()

	s.WriteFrame([]byte{0x01}, 0, 0)
	s.WriteFrame([]byte{0x02}, 33000, 0) // 失败
	s.WriteFrame([]byte{0x03}, 66000, 0)

	require.Len(t, session.writes, 3)
	// 第n帧失败后基线仍推进到t_n，第n+1帧的时长是t_{n+1}−t_n而非t_{n+1}−t_{n−1}
	assert.Equal(t, int64(33000), session.writes[2].durationUs)

	// 单帧失败不改变推流状态
	assert.Equal(t, StateStreaming, s.State())
}

func TestWebRTCSink_ConnectionFailureIsTypedAndFatal(t *testing.T) {
	session := &fakeSession{connectErr: errors.New("no peer joined")}
	s := newTestSink(t, config.DefaultSinkConfig(), session)

	err := s.Start(context.Background())
	require.Error(t, err)

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "eyecam", connErr.Rendezvous)
	assert.ErrorContains(t, connErr, "no peer joined")
	assert.Equal(t, StateFailed, s.State())

	// 协商失败后不得尝试任何帧传输
	s.WriteFrame([]byte{0x01}, 0, 0)
	assert.Empty(t, session.writes)

	// 失败路径上会话仍要恰好释放一次
	require.NoError(t, s.Close())
	assert.Equal(t, 1, session.closeCalls)
}

func TestWebRTCSink_CancellationDetectableThroughConnectionError(t *testing.T) {
	// 协商期间的上下文取消经 ConnectionError 链仍可被 errors.Is 识别，
	// 编排层据此区分正常关闭与连接失败
	session := &fakeSession{
		connectErr: fmt.Errorf("negotiation aborted: %w", context.Canceled),
	}
	s := newTestSink(t, config.DefaultSinkConfig(), session)

	err := s.Start(context.Background())
	require.Error(t, err)

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.ErrorIs(t, err, context.Canceled)

	require.NoError(t, s.Close())
}

func TestWebRTCSink_SetMetricsSafeDuringStreaming(t *testing.T) {
	m, err := metrics.NewMetrics(metrics.DefaultMetricsConfig())
	require.NoError(t, err)
	sm, err := metrics.NewSinkMetrics(m)
	require.NoError(t, err)

	session := &fakeSession{}
	s := streamingSink(t, session)
	defer s.Close()

	// 指标收集器的挂接与帧投递并发进行，-race 下不得有数据竞争
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			s.SetMetrics(sm)
			s.SetMetrics(nil)
		}
	}()

	for i := 0; i < 100; i++ {
		s.WriteFrame([]byte{0x01}, int64(i)*33000, 0)
	}
	wg.Wait()

	require.Len(t, session.writes, 100)
}

func TestWebRTCSink_StartLogsWaitingLineOnce(t *testing.T) {
	hook := logrustest.NewGlobal()
	logrus.SetLevel(logrus.InfoLevel)

	session := &fakeSession{}
	s := streamingSink(t, session)
	defer s.Close()

	waiting := 0
	for _, entry := range hook.AllEntries() {
		if strings.Contains(entry.Message, "Waiting for RTC connection") {
			waiting++
		}
	}
	assert.Equal(t, 1, waiting)
}

func TestWebRTCSink_FramesForwardedInOrder(t *testing.T) {
	session := &fakeSession{}
	s := streamingSink(t, session)
	defer s.Close()

	const n = 32
	for i := 0; i < n; i++ {
		s.WriteFrame([]byte(fmt.Sprintf("frame-%03d", i)), int64(i)*33000, 0)
	}

	require.Len(t, session.writes, n)
	for i, w := range session.writes {
		assert.Equal(t, fmt.Sprintf("frame-%03d", i), string(w.payload))
	}
}

func TestWebRTCSink_CloseReleasesSessionExactlyOnce(t *testing.T) {
	session := &fakeSession{}
	s := streamingSink(t, session)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, session.closeCalls)

	// 释放后的帧投递是空操作
	s.WriteFrame([]byte{0x01}, 0, 0)
	assert.Empty(t, session.writes)
}

func TestWebRTCSink_RendezvousNamePassedToNegotiator(t *testing.T) {
	session := &fakeSession{}
	cfg := config.DefaultSinkConfig()
	cfg.RendezvousName = "garden-cam"

	s := newTestSink(t, cfg, session)
	require.NoError(t, s.Start(context.Background()))
	defer s.Close()

	assert.Equal(t, 1, session.connectCalls)
	assert.Equal(t, "garden-cam", session.connectName)
}

func TestWebRTCSink_SessionAcquisitionFailureFailsConstruction(t *testing.T) {
	boom := errors.New("allocation failed")
	s, err := NewWebRTCSink(config.DefaultSinkConfig(), func() (VideoSession, error) {
		return nil, boom
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, s)
}
