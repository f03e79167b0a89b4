package publisher

import (
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-tcppubsub/internal/bufferpool"
	"github.com/dep2p/go-tcppubsub/internal/executor"
	"github.com/dep2p/go-tcppubsub/internal/wire"
)

// newPipeSession 在内存管道上创建会话，返回对端连接与关闭计数
func newPipeSession(t *testing.T) (*Session, *bufferpool.Pool, net.Conn, *atomic.Int32) {
	t.Helper()
	e := executor.New(nil)
	e.Start(2)
	t.Cleanup(e.Stop)

	pool := bufferpool.New()
	server, client := net.Pipe()
	t.Cleanup(func() { _ = client.Close() })

	var closed atomic.Int32
	s := newSession(e, pool, server, func(*Session) { closed.Add(1) }, nil)
	s.Start()
	return s, pool, client, &closed
}

// completeHandshake 在客户端完成双向握手
func completeHandshake(t *testing.T, client net.Conn, flags uint8) {
	t.Helper()
	require.NoError(t, client.SetDeadline(time.Now().Add(5*time.Second)))

	scratch := make([]byte, wire.HeaderSize)
	h, err := wire.ReadHeader(client, scratch)
	require.NoError(t, err)
	require.Equal(t, wire.ProtocolHandshake, h.Type)
	payload := make([]byte, h.DataSize)
	_, err = io.ReadFull(client, payload)
	require.NoError(t, err)

	_, err = client.Write(wire.AppendHandshakeFrame(nil, wire.Handshake{
		Version: wire.ProtocolVersion,
		Flags:   flags,
	}))
	require.NoError(t, err)
	require.NoError(t, client.SetDeadline(time.Time{}))
}

func waitSessionEstablished(t *testing.T, s *Session) {
	t.Helper()
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.state == stateEstablished
	}, 5*time.Second, time.Millisecond)
}

// sendRegular 构造一帧业务数据并交给会话
func sendRegular(s *Session, pool *bufferpool.Pool, payload string) {
	buf := pool.Allocate()
	buf.Resize(wire.HeaderSize + len(payload))
	wire.PutHeader(buf.Bytes(), wire.RegularPayload, uint64(len(payload)))
	copy(buf.Bytes()[wire.HeaderSize:], payload)
	s.SendDataBuffer(buf)
	buf.Release()
}

func readPipeFrame(t *testing.T, client net.Conn) (wire.Header, []byte) {
	t.Helper()
	require.NoError(t, client.SetReadDeadline(time.Now().Add(5*time.Second)))
	scratch := make([]byte, wire.HeaderSize)
	h, err := wire.ReadHeader(client, scratch)
	require.NoError(t, err)
	payload := make([]byte, h.DataSize)
	_, err = io.ReadFull(client, payload)
	require.NoError(t, err)
	return h, payload
}

func TestSession_HandshakeThenDeliver(t *testing.T) {
	s, pool, client, _ := newPipeSession(t)
	completeHandshake(t, client, 0)
	waitSessionEstablished(t, s)

	sendRegular(s, pool, "hello")
	h, payload := readPipeFrame(t, client)
	assert.Equal(t, wire.RegularPayload, h.Type)
	assert.Equal(t, []byte("hello"), payload)
}

func TestSession_DropsFramesBeforeEstablished(t *testing.T) {
	s, pool, client, _ := newPipeSession(t)

	// 握手完成前的业务帧必须被丢弃
	sendRegular(s, pool, "early")

	completeHandshake(t, client, 0)
	waitSessionEstablished(t, s)
	sendRegular(s, pool, "late")

	_, payload := readPipeFrame(t, client)
	assert.Equal(t, []byte("late"), payload)
}

func TestSession_DropNewestUnderPressure(t *testing.T) {
	s, pool, client, _ := newPipeSession(t)
	completeHandshake(t, client, 0)
	waitSessionEstablished(t, s)

	// 管道无缓冲：F1 的写阻塞到客户端读取为止，
	// F2、F3 依次覆盖 pending 槽
	sendRegular(s, pool, "F1")
	sendRegular(s, pool, "F2")
	sendRegular(s, pool, "F3")

	_, p1 := readPipeFrame(t, client)
	assert.Equal(t, []byte("F1"), p1)
	_, p2 := readPipeFrame(t, client)
	assert.Equal(t, []byte("F3"), p2)
}

func TestSession_ReplayPriority(t *testing.T) {
	s, pool, client, _ := newPipeSession(t)
	completeHandshake(t, client, 0)
	waitSessionEstablished(t, s)

	sendRegular(s, pool, "F1")

	replay := pool.Allocate()
	replay.Resize(wire.HeaderSize + 1)
	wire.PutHeader(replay.Bytes(), wire.RegularPayload, 1)
	replay.Bytes()[wire.HeaderSize] = 'R'
	s.PushTransientBuffer(replay)

	// 与回放竞争的普通帧被丢弃，回放保住 pending 槽
	sendRegular(s, pool, "F2")

	_, p1 := readPipeFrame(t, client)
	assert.Equal(t, []byte("F1"), p1)
	_, p2 := readPipeFrame(t, client)
	assert.Equal(t, []byte("R"), p2)
}

func TestSession_CloseCallbackExactlyOnce(t *testing.T) {
	s, _, client, closed := newPipeSession(t)
	completeHandshake(t, client, 0)
	waitSessionEstablished(t, s)

	s.Cancel()
	s.Cancel()
	_ = client.Close()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), closed.Load())
}

func TestSession_PeerCloseFiresCallback(t *testing.T) {
	s, _, client, closed := newPipeSession(t)
	completeHandshake(t, client, 0)
	waitSessionEstablished(t, s)

	require.NoError(t, client.Close())
	require.Eventually(t, func() bool {
		return closed.Load() == 1
	}, 5*time.Second, time.Millisecond)

	// 之后的取消不再触发回调
	s.Cancel()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), closed.Load())
}

func TestSession_TransientLocalRequested(t *testing.T) {
	s, _, client, _ := newPipeSession(t)
	completeHandshake(t, client, wire.FlagTransientLocal)
	waitSessionEstablished(t, s)

	assert.True(t, s.TransientLocalRequested())
}
