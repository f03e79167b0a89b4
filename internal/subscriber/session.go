// Package subscriber 实现订阅端与订阅会话
package subscriber

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dep2p/go-tcppubsub/internal/bufferpool"
	"github.com/dep2p/go-tcppubsub/internal/executor"
	"github.com/dep2p/go-tcppubsub/internal/wire"
	"github.com/dep2p/go-tcppubsub/pkg/interfaces"
	"github.com/dep2p/go-tcppubsub/pkg/lib/log"
	"github.com/dep2p/go-tcppubsub/pkg/types"
)

// 重连退避参数
const (
	initialReconnectDelay = 100 * time.Millisecond
	maxReconnectDelay     = 5 * time.Second
	dialTimeout           = 5 * time.Second
)

// 确保实现接口
var _ interfaces.SubscriberSession = (*Session)(nil)

// Session 订阅端单个连接会话
//
// 在给定的对端列表内轮转：连接失败换下一个对端并指数退避，
// 连接建立后退避归零。收到的每个业务帧以借用视图交给用户回调。
type Session struct {
	id       string
	exec     *executor.Executor
	pool     *bufferpool.Pool
	log      *log.LazyLogger
	peers    []types.Endpoint
	callback types.MessageCallback

	ctx        context.Context
	cancelCtx  context.CancelFunc
	cancelOnce sync.Once

	mu        sync.Mutex
	conn      net.Conn
	current   int
	connected string
}

func newSession(exec *executor.Executor, pool *bufferpool.Pool,
	peers []types.Endpoint, callback types.MessageCallback) (*Session, error) {
	if len(peers) == 0 {
		return nil, ErrNoPeers
	}
	if callback == nil {
		return nil, ErrNilCallback
	}
	s := &Session{
		id:       uuid.NewString()[:8],
		exec:     exec,
		pool:     pool,
		peers:    peers,
		callback: callback,
	}
	s.log = log.LoggerWithSink("subscriber/session", exec.Sink())
	s.ctx, s.cancelCtx = context.WithCancel(exec.Context())
	return s, nil
}

// Start 启动会话循环
func (s *Session) Start() {
	s.exec.Go(s.run)
}

// Cancel 终止会话，不再重连
func (s *Session) Cancel() {
	s.cancelOnce.Do(func() {
		s.cancelCtx()
		s.mu.Lock()
		if s.conn != nil {
			_ = s.conn.Close()
			s.conn = nil
		}
		s.connected = ""
		s.mu.Unlock()
		s.log.Info("会话已取消", "session", s.id)
	})
}

// ConnectedEndpoint 返回当前连接的对端地址（未连接时为空串）
func (s *Session) ConnectedEndpoint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// ============================================================================
//                              连接循环
// ============================================================================

// run 会话主循环：拨号、握手、读帧，出错后轮转对端并退避重试
func (s *Session) run() {
	delay := initialReconnectDelay

	for s.ctx.Err() == nil {
		peer := s.currentPeer()

		dialer := net.Dialer{Timeout: dialTimeout}
		conn, err := dialer.DialContext(s.ctx, "tcp", peer.String())
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.log.Debug("连接对端失败", "session", s.id, "endpoint", peer, "err", err)
			s.rotate()
			if !s.sleep(delay) {
				return
			}
			delay = nextDelay(delay)
			continue
		}

		if !s.adoptConn(conn, peer) {
			_ = conn.Close()
			return
		}

		if err := s.handshake(conn); err != nil {
			if s.ctx.Err() != nil {
				_ = conn.Close()
				return
			}
			s.log.Error("握手失败", "session", s.id, "endpoint", peer, "err", err)
			s.dropConn(conn)
			s.rotate()
			if !s.sleep(delay) {
				return
			}
			delay = nextDelay(delay)
			continue
		}

		s.log.Info("已连接到发布端", "session", s.id, "endpoint", peer)
		delay = initialReconnectDelay

		err = s.readLoop(conn)
		s.dropConn(conn)
		if s.ctx.Err() != nil {
			return
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
			s.log.Info("发布端断开连接", "session", s.id, "endpoint", peer)
		} else {
			s.log.Error("连接出错", "session", s.id, "endpoint", peer, "err", err)
		}

		s.rotate()
		if !s.sleep(delay) {
			return
		}
	}
}

func (s *Session) currentPeer() types.Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peers[s.current]
}

// rotate 换到下一个对端
func (s *Session) rotate() {
	s.mu.Lock()
	s.current = (s.current + 1) % len(s.peers)
	s.mu.Unlock()
}

// adoptConn 记录当前连接；会话已取消时返回 false
func (s *Session) adoptConn(conn net.Conn, peer types.Endpoint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return false
	}
	s.conn = conn
	s.connected = peer.String()
	return true
}

func (s *Session) dropConn(conn net.Conn) {
	_ = conn.Close()
	s.mu.Lock()
	s.conn = nil
	s.connected = ""
	s.mu.Unlock()
}

// sleep 等待下一次重试；会话取消时返回 false
func (s *Session) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-s.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func nextDelay(d time.Duration) time.Duration {
	d *= 2
	if d > maxReconnectDelay {
		d = maxReconnectDelay
	}
	return d
}

// ============================================================================
//                              握手与读帧
// ============================================================================

// handshake 订阅端侧握手：先发本端记录，再等对端的一个握手帧
func (s *Session) handshake(conn net.Conn) error {
	local := wire.Handshake{
		Version: wire.ProtocolVersion,
		Flags:   wire.FlagTransientLocal,
	}
	if _, err := conn.Write(wire.AppendHandshakeFrame(nil, local)); err != nil {
		return err
	}

	scratch := make([]byte, wire.HeaderSize)
	h, err := wire.ReadHeader(conn, scratch)
	if err != nil {
		return err
	}
	if h.Type != wire.ProtocolHandshake {
		return fmt.Errorf("%w: %s", wire.ErrUnexpectedFrameType, h.Type)
	}
	if h.DataSize < wire.HandshakeSize || h.DataSize > wire.MaxHandshakePayload {
		return fmt.Errorf("%w: handshake data_size=%d", wire.ErrInvalidHeader, h.DataSize)
	}
	payload := make([]byte, h.DataSize)
	if _, err := io.ReadFull(conn, payload); err != nil {
		return err
	}
	remote, err := wire.ParseHandshake(payload)
	if err != nil {
		return err
	}
	s.log.Debug("握手完成", "session", s.id, "version", remote.Version, "flags", remote.Flags)
	return nil
}

// readLoop 读帧循环
//
// 接收缓冲区在回调之间复用；回调返回后内容即失效。
// 未知内容类型的帧只丢弃，不断开连接。
func (s *Session) readLoop(conn net.Conn) error {
	scratch := make([]byte, wire.HeaderSize)
	buf := s.pool.Allocate()
	defer buf.Release()

	for {
		h, err := wire.ReadHeader(conn, scratch)
		if err != nil {
			return err
		}
		switch h.Type {
		case wire.RegularPayload:
			if h.DataSize > uint64(math.MaxInt32) {
				return fmt.Errorf("%w: data_size=%d", ErrFrameTooLarge, h.DataSize)
			}
			buf.Resize(int(h.DataSize))
			if _, err := io.ReadFull(conn, buf.Bytes()); err != nil {
				return err
			}
			s.callback(buf.Bytes())
		default:
			// 迟到的握手帧与未知类型一律丢弃
			if err := wire.DiscardPayload(conn, h); err != nil {
				return err
			}
		}
	}
}
