package sink

import (
	"errors"
	"fmt"
)

// Process exit codes reserved for the supervising restart wrapper. The sink
// itself never terminates the process; the orchestrator maps these from the
// typed errors and callbacks it receives.
const (
	// ExitPeerDisconnected 对端在推流中断开
	ExitPeerDisconnected = 50

	// ExitConnectFailed 连接协商失败
	ExitConnectFailed = 51

	// ExitControlClosed 控制通道被远端关闭
	ExitControlClosed = 52
)

// ErrUnsupportedCodec 配置的编码格式不被支持。
// 非致命：sink进入禁用状态，后续帧全部静默丢弃。
var ErrUnsupportedCodec = errors.New("unsupported codec")

// ConnectionError 连接协商失败。
// 按设计属于致命错误：没有可达的对端，媒体sink无法继续工作，
// 不存在降级模式。是否终止进程由上层编排者决定（见 ExitConnectFailed）。
type ConnectionError struct {
	Rendezvous string
	Reason     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to peer (rendezvous: %s): %v", e.Rendezvous, e.Reason)
}

func (e *ConnectionError) Unwrap() error {
	return e.Reason
}
