package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"

	"github.com/open-beagle/eyecam-webrtc/internal/config"
	"github.com/open-beagle/eyecam-webrtc/internal/metrics"
	"github.com/open-beagle/eyecam-webrtc/internal/sink"
	"github.com/open-beagle/eyecam-webrtc/internal/source"
	"github.com/open-beagle/eyecam-webrtc/internal/transport"
)

const (
	AppName    = "eyecam-webrtc"
	AppVersion = "1.0.0"
)

func main() {
	var (
		configFile = flag.String("config", "", "Configuration file path")
		rendezvous = flag.String("rendezvous", "", "Rendezvous name to wait for")
		codec      = flag.String("codec", "", "Video codec of the input stream")
		brokerURL  = flag.String("broker", "", "Signaling broker URL (ws:// or wss://)")
		input      = flag.String("input", "", "H264 input path ('-' for stdin)")
		framerate  = flag.Int("framerate", 0, "Nominal input framerate")
		logLevel   = flag.String("log-level", "", "Log level (trace, debug, info, warn, error)")
		dumpConfig = flag.String("dump-config", "", "Write the effective configuration to a file and exit")
		version    = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *version {
		fmt.Printf("%s v%s\n", AppName, AppVersion)
		fmt.Println("Camera H264 to WebRTC delivery sink")
		return
	}

	// 加载配置：文件 → 环境变量 → 命令行参数，后者覆盖前者
	var cfg *config.Config
	var err error

	if *configFile != "" {
		cfg, err = config.LoadConfigFromFile(*configFile)
		if err != nil {
			logrus.Fatalf("Failed to load configuration: %v", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	cfg.LoadFromEnv()

	if *rendezvous != "" {
		cfg.Sink.RendezvousName = *rendezvous
	}
	if *codec != "" {
		cfg.Sink.Codec = *codec
	}
	if *brokerURL != "" {
		cfg.Signaling.BrokerURL = *brokerURL
	}
	if *input != "" {
		cfg.Source.Path = *input
	}
	if *framerate > 0 {
		cfg.Source.FrameRate = *framerate
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}

	if *dumpConfig != "" {
		if err := cfg.SaveToFile(*dumpConfig); err != nil {
			logrus.Fatalf("Failed to dump configuration: %v", err)
		}
		fmt.Printf("Configuration written to %s\n", *dumpConfig)
		return
	}

	if err := config.SetupLogger(cfg.Logging); err != nil {
		logrus.Fatalf("Failed to setup logging: %v", err)
	}

	logger := config.GetLoggerWithPrefix("main")
	logger.Infof("%s v%s starting", AppName, AppVersion)

	os.Exit(run(cfg, logger))
}

// run 组装并驱动整条输出链路，返回进程退出码
func run(cfg *config.Config, logger *logrus.Entry) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 监控服务
	m, err := metrics.NewMetrics(*cfg.Metrics)
	if err != nil {
		logger.Errorf("Failed to create metrics: %v", err)
		return 1
	}
	if err := m.Start(); err != nil {
		logger.Errorf("Failed to start metrics server: %v", err)
		return 1
	}
	defer m.Stop()

	sinkMetrics, err := metrics.NewSinkMetrics(m)
	if err != nil {
		logger.Errorf("Failed to register sink metrics: %v", err)
		return 1
	}

	// sink构造：编码格式校验通过后才会获取传输会话
	var session *transport.Session
	videoSink, err := sink.NewWebRTCSink(cfg.Sink, func() (sink.VideoSession, error) {
		var err error
		session, err = transport.NewSession(cfg.WebRTC, cfg.Signaling)
		return session, err
	})
	if err != nil {
		logger.Errorf("Failed to create WebRTC sink: %v", err)
		return 1
	}
	defer videoSink.Close()

	videoSink.SetMetrics(sinkMetrics)

	// 推流中对端丢失与控制通道关闭属于编排层的进程退出策略
	exitCh := make(chan int, 1)
	requestExit := func(code int) {
		select {
		case exitCh <- code:
		default:
		}
	}

	if session != nil {
		session.OnPeerGone(func(state webrtc.PeerConnectionState) {
			logger.Errorf("Peer connection lost (%s), exiting", state)
			requestExit(sink.ExitPeerDisconnected)
		})
		session.OnControlClosed(func() {
			logger.Error("Control channel closed by remote, exiting")
			requestExit(sink.ExitControlClosed)
		})
		session.OnControl(func(x, y float32) {
			sinkMetrics.RecordControlMessage(cfg.Sink.RendezvousName)
			logger.Debugf("Pan/tilt request: x=%.4f y=%.4f", x, y)
		})
	}

	// 阻塞的连接协商；失败时以保留的退出码终止，交由外层守护进程重启。
	// 协商期间收到关闭信号属于正常退出，不能混入连接失败码
	if err := videoSink.Start(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("Shutdown signal received during negotiation")
			return 0
		}
		var connErr *sink.ConnectionError
		if errors.As(err, &connErr) {
			logger.Errorf("Connection negotiation failed: %v", connErr)
			videoSink.Close()
			return sink.ExitConnectFailed
		}
		logger.Errorf("Sink start failed: %v", err)
		return 1
	}

	// 输入源逐帧驱动sink
	src, err := source.NewH264FileSource(cfg.Source)
	if err != nil {
		logger.Errorf("Failed to create H264 source: %v", err)
		return 1
	}
	if err := src.Start(ctx, videoSink.WriteFrame); err != nil {
		logger.Errorf("Failed to start H264 source: %v", err)
		return 1
	}
	defer src.Stop()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
		return 0
	case code := <-exitCh:
		return code
	case <-src.Done():
		logger.Info("Input stream finished")
		return 0
	}
}
