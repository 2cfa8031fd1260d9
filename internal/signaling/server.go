package signaling

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/open-beagle/eyecam-webrtc/internal/config"
)

const (
	// maxSignalSize 单条信令消息大小上限
	maxSignalSize = 64 * 1024

	// pendingLimit 对端缺席时暂存的消息条数上限
	pendingLimit = 64

	serverWriteTimeout = 30 * time.Second
	serverPingInterval = 4 * time.Minute
)

// Server 会合中转代理。
// 每个会合名称下最多两个角色（eye/head），一侧发来的载荷原样转发给另一侧。
// 对端尚未加入时载荷暂存，加入后立即补发。代理不解析SDP内容。
type Server struct {
	logger   *logrus.Entry
	upgrader websocket.Upgrader

	mu         sync.Mutex
	rendezvous map[string]*rendezvousState
}

// rendezvousState 一个会合名称下的中转状态
type rendezvousState struct {
	peers   map[string]*brokerPeer
	pending map[string][][]byte // 按目标角色暂存的载荷
}

// brokerPeer 代理上的一个已连接角色
type brokerPeer struct {
	role string
	conn *websocket.Conn
	send chan []byte
}

// NewServer 创建会合中转代理
func NewServer() *Server {
	return &Server{
		logger: config.GetLoggerWithPrefix("signaling-broker"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		rendezvous: make(map[string]*rendezvousState),
	}
}

// Router 返回代理的HTTP路由
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/rendezvous/{name}/{role}", s.handleWebSocket)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	return r
}

// opposite 返回对端角色
func opposite(role string) string {
	if role == RoleCamera {
		return RoleViewer
	}
	return RoleCamera
}

// handleWebSocket 处理一个角色的WebSocket接入
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name := vars["name"]
	role := vars["role"]

	if role != RoleCamera && role != RoleViewer {
		http.Error(w, "unknown role", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorf("WebSocket upgrade failed for %s/%s: %v", name, role, err)
		return
	}

	peer := &brokerPeer{
		role: role,
		send: make(chan []byte, pendingLimit),
		conn: conn,
	}

	s.registerPeer(name, peer)
	s.logger.Infof("Peer joined rendezvous %s as %s (%s)", name, role, conn.RemoteAddr())

	go peer.writePump(s.logger)
	s.readPump(name, peer)
}

// registerPeer 注册角色并补发暂存载荷。同角色重复接入时替换旧连接。
func (s *Server) registerPeer(name string, peer *brokerPeer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, exists := s.rendezvous[name]
	if !exists {
		state = &rendezvousState{
			peers:   make(map[string]*brokerPeer),
			pending: make(map[string][][]byte),
		}
		s.rendezvous[name] = state
	}

	if old, ok := state.peers[peer.role]; ok {
		close(old.send)
	}
	state.peers[peer.role] = peer

	for _, payload := range state.pending[peer.role] {
		peer.enqueue(payload)
	}
	delete(state.pending, peer.role)
}

// unregisterPeer 移除角色，两侧都离开后清理会合状态
func (s *Server) unregisterPeer(name string, peer *brokerPeer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, exists := s.rendezvous[name]
	if !exists {
		return
	}

	if state.peers[peer.role] == peer {
		delete(state.peers, peer.role)
		close(peer.send)
	}

	if len(state.peers) == 0 {
		delete(s.rendezvous, name)
	}
}

// relay 将载荷转发给对端角色，对端缺席时暂存
func (s *Server) relay(name, fromRole string, payload []byte) {
	target := opposite(fromRole)

	s.mu.Lock()
	defer s.mu.Unlock()

	state, exists := s.rendezvous[name]
	if !exists {
		return
	}

	if peer, ok := state.peers[target]; ok {
		peer.enqueue(payload)
		return
	}

	queue := state.pending[target]
	if len(queue) >= pendingLimit {
		s.logger.Warnf("Pending queue full for rendezvous %s role %s, dropping signal", name, target)
		return
	}
	state.pending[target] = append(queue, payload)
}

// readPump 读取角色发来的载荷并中转
func (s *Server) readPump(name string, peer *brokerPeer) {
	defer func() {
		s.unregisterPeer(name, peer)
		peer.conn.Close()
		s.logger.Infof("Peer left rendezvous %s (%s)", name, peer.role)
	}()

	peer.conn.SetReadLimit(maxSignalSize)

	for {
		_, payload, err := peer.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warnf("Read error on rendezvous %s (%s): %v", name, peer.role, err)
			}
			return
		}

		s.relay(name, peer.role, payload)
	}
}

// enqueue 非阻塞投递；角色消费过慢时丢弃载荷
func (p *brokerPeer) enqueue(payload []byte) {
	select {
	case p.send <- payload:
	default:
	}
}

// writePump 将中转载荷写出给角色
func (p *brokerPeer) writePump(logger *logrus.Entry) {
	ticker := time.NewTicker(serverPingInterval)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(serverWriteTimeout))
			if !ok {
				p.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := p.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Warnf("Write error to %s peer: %v", p.role, err)
				return
			}

		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(serverWriteTimeout))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
