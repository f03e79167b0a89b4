package publisher

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dep2p/go-tcppubsub/internal/bufferpool"
	"github.com/dep2p/go-tcppubsub/internal/executor"
	"github.com/dep2p/go-tcppubsub/internal/wire"
	"github.com/dep2p/go-tcppubsub/pkg/interfaces"
	"github.com/dep2p/go-tcppubsub/pkg/lib/log"
	"github.com/dep2p/go-tcppubsub/pkg/types"
)

// 确保实现接口
var _ interfaces.Publisher = (*Publisher)(nil)

// transientElement 保留缓冲中的一条记录
//
// 记录按入队顺序排列，enqueuedAt 单调不减。
type transientElement struct {
	buf        *bufferpool.Buffer
	enqueuedAt time.Time
}

// Publisher 发布端
//
// 持有监听套接字、活跃会话集合与保留缓冲。会话集合与保留缓冲
// 各由独立互斥量保护，两把锁从不同时持有。
type Publisher struct {
	exec    *executor.Executor
	log     *log.LazyLogger
	setting types.TransientLocalSetting
	pool    *bufferpool.Pool

	running atomic.Bool

	listenerMu sync.Mutex
	listener   net.Listener

	sessionsMu sync.Mutex
	sessions   []*Session

	transientMu sync.Mutex
	transient   []transientElement
}

// New 创建发布端
func New(exec *executor.Executor, setting types.TransientLocalSetting) (*Publisher, error) {
	if exec == nil {
		return nil, ErrNilExecutor
	}
	return &Publisher{
		exec:    exec,
		log:     log.LoggerWithSink("publisher", exec.Sink()),
		setting: setting,
		pool:    bufferpool.New(),
	}, nil
}

// ============================================================================
//                              启动与停止
// ============================================================================

// Start 绑定并监听
//
// 打开套接字、设置 reuse-address、bind、listen 由 net.ListenConfig
// 一次完成，任何一步失败都不留下部分状态。
func (p *Publisher) Start(addr string, port uint16) error {
	if p.running.Load() {
		return ErrAlreadyRunning
	}
	if addr == "" {
		addr = "0.0.0.0"
	}
	ep := types.Endpoint{Host: addr, Port: port}

	lc := net.ListenConfig{Control: controlReuseAddr}
	ln, err := lc.Listen(p.exec.Context(), "tcp", ep.String())
	if err != nil {
		p.log.Error("监听失败", "endpoint", ep, "err", err)
		return fmt.Errorf("publisher: listen %s: %w", ep, err)
	}

	p.listenerMu.Lock()
	p.listener = ln
	p.listenerMu.Unlock()
	p.running.Store(true)

	p.log.Info("发布端已创建，等待订阅者连接", "endpoint", ln.Addr())
	p.exec.Go(p.acceptLoop)
	return nil
}

// Cancel 关闭监听并断开所有会话，可重复调用
func (p *Publisher) Cancel() {
	p.log.Debug("发布端关闭中")

	p.listenerMu.Lock()
	if p.listener != nil {
		_ = p.listener.Close()
	}
	p.listenerMu.Unlock()

	p.running.Store(false)

	// 先拷贝会话列表，避免在持锁状态下回调
	p.sessionsMu.Lock()
	snapshot := make([]*Session, len(p.sessions))
	copy(snapshot, p.sessions)
	p.sessionsMu.Unlock()

	for _, s := range snapshot {
		s.Cancel()
	}
}

// ============================================================================
//                              接受连接
// ============================================================================

// acceptLoop 循环接受订阅者连接
//
// 监听套接字关闭（主动取消）按 Info 记录并退出，其余错误按
// Error 记录并退出。
func (p *Publisher) acceptLoop() {
	for {
		p.listenerMu.Lock()
		ln := p.listener
		p.listenerMu.Unlock()

		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				p.log.Info("停止接受新订阅者")
			} else {
				p.log.Error("等待订阅者连接出错", "err", err)
			}
			return
		}
		p.log.Info("订阅者已连接", "remote", conn.RemoteAddr())

		sess := newSession(p.exec, p.pool, conn, p.handleSessionClosed, p.handleSessionReady)

		// 先入集合再启动，保证会话即刻关闭时关闭回调也能把它移除
		p.sessionsMu.Lock()
		p.sessions = append(p.sessions, sess)
		count := len(p.sessions)
		p.sessionsMu.Unlock()
		p.log.Debug("当前订阅者数量", "count", count)

		sess.Start()
	}
}

// handleSessionClosed 会话关闭回调，把会话移出活跃集合
func (p *Publisher) handleSessionClosed(s *Session) {
	p.sessionsMu.Lock()
	found := false
	for i, ss := range p.sessions {
		if ss == s {
			p.sessions = append(p.sessions[:i], p.sessions[i+1:]...)
			found = true
			break
		}
	}
	count := len(p.sessions)
	p.sessionsMu.Unlock()

	if found {
		p.log.Debug("已移除订阅者会话", "remote", s.RemoteEndpoint(), "count", count)
	} else {
		p.log.Error("尝试删除不存在的发布会话")
	}
}

// handleSessionReady 会话就绪回调，推送保留帧回放
//
// 会话同一时刻只允许一个在途写，逐帧回放会触发丢帧策略；
// 必须把全部保留帧拼成一整块、一次交给会话。
func (p *Publisher) handleSessionReady(s *Session) {
	if !p.setting.Enabled() {
		return
	}
	if !s.TransientLocalRequested() {
		return
	}

	var (
		toSend []*bufferpool.Buffer
		total  int
	)
	p.transientMu.Lock()
	p.purgeExpiredLocked(time.Now())
	for _, ele := range p.transient {
		toSend = append(toSend, ele.buf.Retain())
		total += ele.buf.Len()
	}
	p.transientMu.Unlock()

	if len(toSend) == 0 {
		return
	}

	big := p.pool.Allocate()
	big.Resize(total)
	pos := 0
	for _, buf := range toSend {
		pos += copy(big.Bytes()[pos:], buf.Bytes())
		buf.Release()
	}
	p.log.Debug("推送保留帧回放", "remote", s.RemoteEndpoint(),
		"frames", len(toSend), "bytes", total)
	s.PushTransientBuffer(big)
}

// ============================================================================
//                              发送
// ============================================================================

// Send 把各段 payload 拼成一帧发送给所有已连接的订阅者
//
// 向未运行的发布端发送返回 false。没有订阅者且保留功能关闭时
// 直接短路。所有会话共享同一块缓冲区。
func (p *Publisher) Send(payloads ...[]byte) bool {
	if !p.running.Load() {
		p.log.Error("向未运行的发布端发送数据")
		return false
	}

	if !p.setting.Enabled() {
		p.sessionsMu.Lock()
		empty := len(p.sessions) == 0
		p.sessionsMu.Unlock()
		if empty {
			p.log.DebugVerbose("没有订阅者连接，跳过发送")
			return true
		}
	}

	total := 0
	for _, pl := range payloads {
		total += len(pl)
	}

	buf := p.pool.Allocate()
	buf.Resize(wire.HeaderSize + total)
	wire.PutHeader(buf.Bytes(), wire.RegularPayload, uint64(total))
	pos := wire.HeaderSize
	for _, pl := range payloads {
		pos += copy(buf.Bytes()[pos:], pl)
	}

	// 持锁派发，保证所有存活会话看到一致的帧序前缀
	p.sessionsMu.Lock()
	for _, s := range p.sessions {
		s.SendDataBuffer(buf)
	}
	p.sessionsMu.Unlock()

	if p.setting.Enabled() {
		now := time.Now()
		p.transientMu.Lock()
		p.transient = append(p.transient, transientElement{buf: buf.Retain(), enqueuedAt: now})
		p.purgeExpiredLocked(now)
		p.transientMu.Unlock()
	}

	buf.Release()
	return true
}

// purgeExpiredLocked 按条数与时龄淘汰过期记录
//
// 调用方必须持有 transientMu。淘汰始终从最旧的一端开始。
func (p *Publisher) purgeExpiredLocked(now time.Time) {
	for len(p.transient) > 0 &&
		(len(p.transient) > p.setting.BufferMaxCount ||
			(p.setting.Lifespan > 0 && now.Sub(p.transient[0].enqueuedAt) > p.setting.Lifespan)) {
		p.transient[0].buf.Release()
		p.transient[0].buf = nil
		p.transient = p.transient[1:]
	}
}

// ============================================================================
//                              状态查询
// ============================================================================

// Port 返回实际监听端口（未运行时为 0）
func (p *Publisher) Port() uint16 {
	if !p.running.Load() {
		return 0
	}
	p.listenerMu.Lock()
	defer p.listenerMu.Unlock()
	if p.listener == nil {
		return 0
	}
	if addr, ok := p.listener.Addr().(*net.TCPAddr); ok {
		return uint16(addr.Port)
	}
	return 0
}

// SubscriberCount 返回当前已连接的订阅者数量
func (p *Publisher) SubscriberCount() int {
	p.sessionsMu.Lock()
	defer p.sessionsMu.Unlock()
	return len(p.sessions)
}

// IsRunning 返回发布端是否在运行
func (p *Publisher) IsRunning() bool {
	return p.running.Load()
}
