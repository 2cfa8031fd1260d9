package signaling

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/open-beagle/eyecam-webrtc/internal/config"
)

// Roles within a rendezvous. The camera side joins as RoleCamera; the remote
// viewer joins as RoleViewer. The broker relays each side's payloads to the
// opposite role.
const (
	RoleCamera = "eye"
	RoleViewer = "head"
)

// Client 信令代理的WebSocket客户端。
// 负责与代理保持连接：收到的载荷解析后送入 Incoming 通道；
// Send 发出的消息由写循环转发给代理。读连接断开后按配置的间隔自动重连，
// Incoming 通道在重连期间保持打开。
type Client struct {
	id         string
	cfg        *config.SignalingConfig
	rendezvous string
	role       string
	logger     *logrus.Entry

	conn     *websocket.Conn
	connMu   sync.Mutex
	incoming chan *Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	opened bool
	mu     sync.Mutex
}

// NewClient 创建信令客户端
func NewClient(cfg *config.SignalingConfig, rendezvous string) *Client {
	clientID := uuid.NewString()

	return &Client{
		id:         clientID,
		cfg:        cfg,
		rendezvous: rendezvous,
		role:       RoleCamera,
		logger:     config.GetLoggerWithPrefix(fmt.Sprintf("signaling-client-%s", clientID[:8])),
		incoming:   make(chan *Message, 64),
	}
}

// endpoint 拼出代理上本会合点、本角色的WebSocket地址
func (c *Client) endpoint() (string, error) {
	base, err := url.Parse(c.cfg.BrokerURL)
	if err != nil {
		return "", fmt.Errorf("invalid broker URL: %w", err)
	}

	return base.JoinPath("rendezvous", c.rendezvous, c.role).String(), nil
}

// Open 连接代理并启动读循环。连接失败返回错误；连接建立后的断线由
// 读循环按 ReconnectDelay 自动重连。
func (c *Client) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.opened {
		return fmt.Errorf("signaling client already open")
	}

	endpoint, err := c.endpoint()
	if err != nil {
		return err
	}

	conn, err := c.dial(ctx, endpoint)
	if err != nil {
		return fmt.Errorf("failed to reach signaling broker: %w", err)
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.setConn(conn)
	c.opened = true

	c.wg.Add(1)
	go c.readPump(endpoint)

	c.logger.Infof("Signaling channel open (rendezvous: %s)", c.rendezvous)
	return nil
}

// dial 执行一次WebSocket握手
func (c *Client) dial(ctx context.Context, endpoint string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = conn
}

func (c *Client) currentConn() *websocket.Conn {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn
}

// readPump 持续读取代理消息并送入 incoming 通道。
// 连接断开后重拨代理，对应原始实现中 "Broker died, restarting" 的行为。
func (c *Client) readPump(endpoint string) {
	defer c.wg.Done()
	defer close(c.incoming)

	for {
		conn := c.currentConn()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.ctx.Done():
				return
			default:
			}

			c.logger.Warnf("Broker connection lost, redialing: %v", err)

			select {
			case <-c.ctx.Done():
				return
			case <-time.After(c.cfg.ReconnectDelay):
			}

			next, dialErr := c.dial(c.ctx, endpoint)
			if dialErr != nil {
				c.logger.Errorf("Broker redial failed: %v", dialErr)
				continue
			}
			c.setConn(next)
			continue
		}

		message, err := DecodeMessage(data)
		if err != nil {
			c.logger.Warnf("Dropping malformed signal: %v", err)
			continue
		}

		select {
		case c.incoming <- message:
		case <-c.ctx.Done():
			return
		}
	}
}

// Incoming 返回接收通道。客户端关闭后通道亦关闭。
func (c *Client) Incoming() <-chan *Message {
	return c.incoming
}

// SendPayload 发送一条已编码的信令载荷
func (c *Client) SendPayload(payload []byte) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("signaling client is closed")
	}

	c.conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("failed to send signal: %w", err)
	}
	return nil
}

// Close 关闭信令客户端并释放连接
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.opened {
		return nil
	}
	c.opened = false

	c.cancel()

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	c.wg.Wait()
	c.logger.Info("Signaling channel closed")
	return nil
}
