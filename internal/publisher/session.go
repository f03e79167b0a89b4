// Package publisher 实现发布端与发布会话
package publisher

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/dep2p/go-tcppubsub/internal/bufferpool"
	"github.com/dep2p/go-tcppubsub/internal/executor"
	"github.com/dep2p/go-tcppubsub/internal/wire"
	"github.com/dep2p/go-tcppubsub/pkg/lib/log"
)

// ============================================================================
//                              会话状态
// ============================================================================

// sessionState 握手状态机
type sessionState int

const (
	// stateAwaitLocalSend 等待发送本端握手帧
	stateAwaitLocalSend sessionState = iota

	// stateAwaitRemoteRecv 本端握手帧已入队，等待对端握手帧
	stateAwaitRemoteRecv

	// stateEstablished 握手完成，接受业务数据帧
	stateEstablished

	// stateFailed 终态：套接字已关闭
	stateFailed
)

// ============================================================================
//                              Session
// ============================================================================

// Session 发布端的单个订阅者会话
//
// 携带一个订阅者从 accept 到断开的全过程：发布端侧握手、
// 单在途写的发送路径与背压丢帧策略。
//
// 写路径约束：同一时刻只允许一个在途写。写仍在进行时到达的
// 新帧覆盖 pending 槽（丢弃尚未写出的旧帧，保留最新帧），
// 发布端因此永不阻塞。
type Session struct {
	id   string
	conn net.Conn
	exec *executor.Executor
	pool *bufferpool.Pool
	log  *log.LazyLogger

	// onClosed 套接字关闭后恰好调用一次
	onClosed func(*Session)

	// onReady 对端握手帧读取成功后、接受业务帧之前调用一次，
	// 发布端用它推送保留帧回放
	onReady func(*Session)

	mu      sync.Mutex
	state   sessionState
	writing bool
	pending *bufferpool.Buffer
	// pendingReplay 为 true 时 pending 槽被回放帧占据，
	// 普通帧不得将其挤掉
	pendingReplay bool
	writeCh       chan *bufferpool.Buffer
	closed        bool
	remote        wire.Handshake

	closeOnce sync.Once
}

func newSession(exec *executor.Executor, pool *bufferpool.Pool, conn net.Conn,
	onClosed, onReady func(*Session)) *Session {
	s := &Session{
		id:       uuid.NewString()[:8],
		conn:     conn,
		exec:     exec,
		pool:     pool,
		onClosed: onClosed,
		onReady:  onReady,
		state:    stateAwaitLocalSend,
		writeCh:  make(chan *bufferpool.Buffer, 1),
	}
	s.log = log.LoggerWithSink("publisher/session", exec.Sink())
	return s
}

// Start 启动会话
//
// 立即把本端握手帧入队，然后进入写循环与读循环。
func (s *Session) Start() {
	hs := wire.Handshake{Version: wire.ProtocolVersion}
	buf := s.pool.Allocate()
	buf.Append(wire.AppendHandshakeFrame(nil, hs))

	s.mu.Lock()
	s.state = stateAwaitRemoteRecv
	s.enqueueLocked(buf, false)
	s.mu.Unlock()

	s.exec.Go(s.writeLoop)
	s.exec.Go(s.readLoop)
}

// RemoteEndpoint 返回对端地址
func (s *Session) RemoteEndpoint() string {
	return s.conn.RemoteAddr().String()
}

// TransientLocalRequested 返回对端握手是否请求了保留帧回放
func (s *Session) TransientLocalRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remote.RequestsTransientLocal()
}

// Cancel 终止会话
func (s *Session) Cancel() {
	s.shutdown(nil)
}

// ============================================================================
//                              发送路径
// ============================================================================

// SendDataBuffer 把一帧交给会话发送
//
// 只有 Established 状态的会话接受业务帧；会话接受时自行增加
// 缓冲区引用。上一个写未完成时新帧覆盖 pending 槽。
func (s *Session) SendDataBuffer(buf *bufferpool.Buffer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateEstablished || s.closed {
		return
	}
	s.enqueueLocked(buf.Retain(), false)
}

// PushTransientBuffer 推送保留帧回放
//
// 接管 buf 的引用。回放绕过 Established 检查（此时状态仍是
// AwaitRemoteRecv），并且拥有优先权：如果写循环恰好在写
// 握手帧或与普通帧竞争，回放帧直接占据 pending 槽，被挤掉的
// 普通帧按背压策略丢弃。
func (s *Session) PushTransientBuffer(buf *bufferpool.Buffer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		buf.Release()
		return
	}
	s.enqueueLocked(buf, true)
}

// enqueueLocked 入队一帧，调用方必须持有 s.mu 且已拥有 buf 的引用
func (s *Session) enqueueLocked(buf *bufferpool.Buffer, replay bool) {
	if s.closed {
		buf.Release()
		return
	}
	if s.writing {
		if s.pendingReplay && !replay {
			// 回放优先：与回放竞争的普通帧直接丢弃
			buf.Release()
			s.log.DebugVerbose("背压丢帧", "session", s.id)
			return
		}
		if s.pending != nil {
			s.pending.Release()
			s.log.DebugVerbose("背压丢帧", "session", s.id)
		}
		s.pending = buf
		s.pendingReplay = replay
		return
	}
	s.writing = true
	s.writeCh <- buf
}

// writeLoop 写循环
//
// 每写完一帧检查 pending 槽，有则继续写，无则回到空闲。
func (s *Session) writeLoop() {
	for buf := range s.writeCh {
		for buf != nil {
			_, err := s.conn.Write(buf.Bytes())
			buf.Release()
			if err != nil {
				s.shutdown(err)
				return
			}
			s.mu.Lock()
			if s.pending != nil {
				buf = s.pending
				s.pending = nil
				s.pendingReplay = false
			} else {
				buf = nil
				s.writing = false
			}
			s.mu.Unlock()
		}
	}
}

// ============================================================================
//                              接收路径
// ============================================================================

// readLoop 读循环
//
// 第一帧必须是对端握手帧；之后继续读取只为感知断开，
// 内容全部丢弃。
func (s *Session) readLoop() {
	scratch := make([]byte, wire.HeaderSize)

	h, err := wire.ReadHeader(s.conn, scratch)
	if err != nil {
		s.shutdown(err)
		return
	}
	if h.Type != wire.ProtocolHandshake {
		s.shutdown(fmt.Errorf("%w: %s", wire.ErrUnexpectedFrameType, h.Type))
		return
	}
	if h.DataSize < wire.HandshakeSize || h.DataSize > wire.MaxHandshakePayload {
		s.shutdown(fmt.Errorf("%w: handshake data_size=%d", wire.ErrInvalidHeader, h.DataSize))
		return
	}
	payload := make([]byte, h.DataSize)
	if _, err := io.ReadFull(s.conn, payload); err != nil {
		s.shutdown(err)
		return
	}
	hs, err := wire.ParseHandshake(payload)
	if err != nil {
		s.shutdown(err)
		return
	}

	s.mu.Lock()
	s.remote = hs
	s.mu.Unlock()
	s.log.Debug("握手完成", "session", s.id, "remote", s.RemoteEndpoint(),
		"version", hs.Version, "flags", hs.Flags)

	// 回放推送先于 Established：普通帧在状态翻转前一律被丢弃，
	// 回放帧因此是订阅者看到的第一个业务帧
	if s.onReady != nil {
		s.onReady(s)
	}
	s.mu.Lock()
	if s.state == stateAwaitRemoteRecv {
		s.state = stateEstablished
	}
	s.mu.Unlock()

	for {
		h, err := wire.ReadHeader(s.conn, scratch)
		if err != nil {
			s.shutdown(err)
			return
		}
		if err := wire.DiscardPayload(s.conn, h); err != nil {
			s.shutdown(err)
			return
		}
	}
}

// ============================================================================
//                              关闭
// ============================================================================

// shutdown 关闭会话，err 为 nil 表示主动取消
func (s *Session) shutdown(err error) {
	s.closeOnce.Do(func() {
		switch {
		case err == nil || errors.Is(err, net.ErrClosed):
			s.log.Info("会话已取消", "session", s.id)
		case errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF):
			s.log.Info("订阅者断开连接", "session", s.id, "remote", s.RemoteEndpoint())
		default:
			s.log.Error("会话出错", "session", s.id, "remote", s.RemoteEndpoint(), "err", err)
		}

		s.mu.Lock()
		s.state = stateFailed
		s.closed = true
		if s.pending != nil {
			s.pending.Release()
			s.pending = nil
		}
		close(s.writeCh)
		s.mu.Unlock()

		_ = s.conn.Close()

		if s.onClosed != nil {
			s.onClosed(s)
		}
	})
}
