package subscriber

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-tcppubsub/internal/executor"
	"github.com/dep2p/go-tcppubsub/internal/wire"
	"github.com/dep2p/go-tcppubsub/pkg/types"
)

// ============================================================================
//                              测试辅助
// ============================================================================

func newTestExecutor(t *testing.T) *executor.Executor {
	t.Helper()
	e := executor.New(nil)
	e.Start(2)
	t.Cleanup(e.Stop)
	return e
}

// fakePublisher 用原始监听套接字模拟发布端
type fakePublisher struct {
	ln    net.Listener
	conns chan net.Conn
}

func newFakePublisher(t *testing.T) *fakePublisher {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	f := &fakePublisher{ln: ln, conns: make(chan net.Conn, 4)}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			f.conns <- conn
		}
	}()
	return f
}

func (f *fakePublisher) endpoint() types.Endpoint {
	addr := f.ln.Addr().(*net.TCPAddr)
	return types.Endpoint{Host: "127.0.0.1", Port: uint16(addr.Port)}
}

// accept 等待一条订阅端连接
func (f *fakePublisher) accept(t *testing.T) net.Conn {
	t.Helper()
	select {
	case conn := <-f.conns:
		t.Cleanup(func() { _ = conn.Close() })
		return conn
	case <-time.After(5 * time.Second):
		t.Fatal("等待订阅端连接超时")
		return nil
	}
}

// serverHandshake 完成发布端侧握手，返回订阅端的握手记录
func serverHandshake(t *testing.T, conn net.Conn) wire.Handshake {
	t.Helper()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	scratch := make([]byte, wire.HeaderSize)
	h, err := wire.ReadHeader(conn, scratch)
	require.NoError(t, err)
	require.Equal(t, wire.ProtocolHandshake, h.Type)
	payload := make([]byte, h.DataSize)
	_, err = io.ReadFull(conn, payload)
	require.NoError(t, err)
	hs, err := wire.ParseHandshake(payload)
	require.NoError(t, err)

	_, err = conn.Write(wire.AppendHandshakeFrame(nil, wire.Handshake{Version: wire.ProtocolVersion}))
	require.NoError(t, err)
	require.NoError(t, conn.SetDeadline(time.Time{}))
	return hs
}

func writeFrame(t *testing.T, conn net.Conn, typ wire.ContentType, payload []byte) {
	t.Helper()
	frame := make([]byte, wire.HeaderSize+len(payload))
	wire.PutHeader(frame, typ, uint64(len(payload)))
	copy(frame[wire.HeaderSize:], payload)
	_, err := conn.Write(frame)
	require.NoError(t, err)
}

// deadEndpoint 返回一个没有监听者的端口
func deadEndpoint(t *testing.T) types.Endpoint {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ep := types.Endpoint{Host: "127.0.0.1", Port: uint16(ln.Addr().(*net.TCPAddr).Port)}
	require.NoError(t, ln.Close())
	return ep
}

func waitPayload(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case data := <-ch:
		return data
	case <-time.After(5 * time.Second):
		t.Fatal("等待回调超时")
		return nil
	}
}

// ============================================================================
//                              构造校验
// ============================================================================

func TestNew_NilExecutor(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrNilExecutor)
}

func TestAddSession_Validation(t *testing.T) {
	sub, err := New(newTestExecutor(t))
	require.NoError(t, err)

	_, err = sub.AddSession(nil, func([]byte) {})
	assert.ErrorIs(t, err, ErrNoPeers)

	_, err = sub.AddSession([]types.Endpoint{{Host: "127.0.0.1", Port: 1}}, nil)
	assert.ErrorIs(t, err, ErrNilCallback)
}

// ============================================================================
//                              收帧
// ============================================================================

func TestSession_ReceivesPayload(t *testing.T) {
	f := newFakePublisher(t)
	sub, err := New(newTestExecutor(t))
	require.NoError(t, err)
	defer sub.Cancel()

	received := make(chan []byte, 16)
	_, err = sub.AddSession([]types.Endpoint{f.endpoint()}, func(data []byte) {
		received <- append([]byte(nil), data...)
	})
	require.NoError(t, err)

	conn := f.accept(t)
	hs := serverHandshake(t, conn)
	// 订阅端总是请求保留帧回放
	assert.True(t, hs.RequestsTransientLocal())
	assert.Equal(t, wire.ProtocolVersion, hs.Version)

	writeFrame(t, conn, wire.RegularPayload, []byte("hello"))
	assert.Equal(t, []byte("hello"), waitPayload(t, received))
}

func TestSession_UnknownContentTypeSkipped(t *testing.T) {
	f := newFakePublisher(t)
	sub, err := New(newTestExecutor(t))
	require.NoError(t, err)
	defer sub.Cancel()

	received := make(chan []byte, 16)
	_, err = sub.AddSession([]types.Endpoint{f.endpoint()}, func(data []byte) {
		received <- append([]byte(nil), data...)
	})
	require.NoError(t, err)

	conn := f.accept(t)
	serverHandshake(t, conn)

	// 未知类型的帧被丢弃，连接保持
	writeFrame(t, conn, wire.ContentType(42), []byte("ignored"))
	writeFrame(t, conn, wire.RegularPayload, []byte("kept"))

	assert.Equal(t, []byte("kept"), waitPayload(t, received))
}

func TestSession_EmptyPayload(t *testing.T) {
	f := newFakePublisher(t)
	sub, err := New(newTestExecutor(t))
	require.NoError(t, err)
	defer sub.Cancel()

	received := make(chan []byte, 16)
	_, err = sub.AddSession([]types.Endpoint{f.endpoint()}, func(data []byte) {
		received <- append([]byte(nil), data...)
	})
	require.NoError(t, err)

	conn := f.accept(t)
	serverHandshake(t, conn)

	writeFrame(t, conn, wire.RegularPayload, nil)
	assert.Len(t, waitPayload(t, received), 0)
}

// ============================================================================
//                              故障转移与重连
// ============================================================================

func TestSession_FailoverToNextPeer(t *testing.T) {
	f := newFakePublisher(t)
	sub, err := New(newTestExecutor(t))
	require.NoError(t, err)
	defer sub.Cancel()

	received := make(chan []byte, 16)
	// 第一个对端无人监听，会话应轮转到第二个
	_, err = sub.AddSession([]types.Endpoint{deadEndpoint(t), f.endpoint()}, func(data []byte) {
		received <- append([]byte(nil), data...)
	})
	require.NoError(t, err)

	conn := f.accept(t)
	serverHandshake(t, conn)

	writeFrame(t, conn, wire.RegularPayload, []byte("failover"))
	assert.Equal(t, []byte("failover"), waitPayload(t, received))
}

func TestSession_ReconnectAfterPeerClose(t *testing.T) {
	f := newFakePublisher(t)
	sub, err := New(newTestExecutor(t))
	require.NoError(t, err)
	defer sub.Cancel()

	received := make(chan []byte, 16)
	sess, err := sub.AddSession([]types.Endpoint{f.endpoint()}, func(data []byte) {
		received <- append([]byte(nil), data...)
	})
	require.NoError(t, err)

	conn := f.accept(t)
	serverHandshake(t, conn)
	writeFrame(t, conn, wire.RegularPayload, []byte("first"))
	assert.Equal(t, []byte("first"), waitPayload(t, received))

	// 发布端断开后会话重连同一对端
	require.NoError(t, conn.Close())

	conn2 := f.accept(t)
	serverHandshake(t, conn2)
	writeFrame(t, conn2, wire.RegularPayload, []byte("second"))
	assert.Equal(t, []byte("second"), waitPayload(t, received))

	assert.Equal(t, f.endpoint().String(), sess.ConnectedEndpoint())
}

func TestSession_CancelClosesConnection(t *testing.T) {
	f := newFakePublisher(t)
	sub, err := New(newTestExecutor(t))
	require.NoError(t, err)

	sess, err := sub.AddSession([]types.Endpoint{f.endpoint()}, func([]byte) {})
	require.NoError(t, err)

	conn := f.accept(t)
	serverHandshake(t, conn)

	sess.Cancel()
	sess.Cancel() // 幂等

	// 发布端侧观察到连接关闭
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	oneByte := make([]byte, 1)
	_, err = conn.Read(oneByte)
	assert.Error(t, err)
	assert.Empty(t, sess.ConnectedEndpoint())
}

func TestSubscriber_CancelAllSessions(t *testing.T) {
	f := newFakePublisher(t)
	sub, err := New(newTestExecutor(t))
	require.NoError(t, err)

	_, err = sub.AddSession([]types.Endpoint{f.endpoint()}, func([]byte) {})
	require.NoError(t, err)
	_, err = sub.AddSession([]types.Endpoint{f.endpoint()}, func([]byte) {})
	require.NoError(t, err)
	require.Len(t, sub.Sessions(), 2)

	sub.Cancel()
	for _, sess := range sub.Sessions() {
		assert.Empty(t, sess.ConnectedEndpoint())
	}
}
