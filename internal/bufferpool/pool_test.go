package bufferpool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocate(t *testing.T) {
	pool := New()

	buf := pool.Allocate()
	require.NotNil(t, buf)
	assert.Equal(t, 0, buf.Len())

	buf.Release()
}

func TestRecycle(t *testing.T) {
	pool := New()

	buf := pool.Allocate()
	buf.Resize(128)
	buf.Release()

	// 回收后的缓冲区长度清零，容量保留
	again := pool.Allocate()
	assert.Equal(t, 0, again.Len())
	again.Release()
}

func TestResize_GrowReserve(t *testing.T) {
	pool := New()
	buf := pool.Allocate()

	buf.Resize(1000)
	assert.Equal(t, 1000, buf.Len())
	// 容量不足时按 1.1 倍预留
	assert.GreaterOrEqual(t, cap(buf.Bytes()), 1100)

	// 容量足够时不重新分配
	buf.Resize(500)
	assert.Equal(t, 500, buf.Len())
	buf.Release()
}

func TestResize_KeepsContent(t *testing.T) {
	pool := New()
	buf := pool.Allocate()

	buf.Append([]byte("hello"))
	buf.Resize(4096)
	assert.Equal(t, []byte("hello"), buf.Bytes()[:5])
	buf.Release()
}

func TestSharedLifetime(t *testing.T) {
	pool := New()

	buf := pool.Allocate()
	buf.Append([]byte("payload"))

	// 两个会话各持有一次引用
	buf.Retain()
	buf.Retain()

	buf.Release()
	buf.Release()
	assert.Equal(t, []byte("payload"), buf.Bytes())

	// 最后一次释放后才允许复用
	buf.Release()
}

func TestConcurrentAllocateRelease(t *testing.T) {
	pool := New()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				buf := pool.Allocate()
				buf.Resize(64)
				buf.Retain()
				buf.Release()
				buf.Release()
			}
		}()
	}
	wg.Wait()
}
