// Package bufferpool 提供可回收的发送/接收缓冲区
//
// 发送路径上同一帧会被发布端、保留缓冲与每个会话共享，
// 因此缓冲区带引用计数：最后一个 Release 把底层存储还回池里，
// 而不是交给 GC。池底层使用 sync.Pool，空闲时允许自行收缩。
package bufferpool

import (
	"sync"
	"sync/atomic"
)

// Pool 缓冲区池
//
// Allocate/Release 可以在任意工作线程并发调用。
type Pool struct {
	p sync.Pool
}

// New 创建缓冲区池
func New() *Pool {
	pool := &Pool{}
	pool.p.New = func() any {
		return &Buffer{pool: pool}
	}
	return pool
}

// Allocate 取出一个缓冲区，引用计数为 1
func (p *Pool) Allocate() *Buffer {
	b := p.p.Get().(*Buffer)
	b.refs.Store(1)
	b.data = b.data[:0]
	return b
}

// Buffer 引用计数的字节缓冲区
//
// 填充完成后缓冲区视为只读，跨会话共享时不再修改。
type Buffer struct {
	pool *Pool
	data []byte
	refs atomic.Int32
}

// Retain 增加一次引用并返回自身
func (b *Buffer) Retain() *Buffer {
	b.refs.Add(1)
	return b
}

// Release 释放一次引用，最后一次释放把缓冲区还回池里
func (b *Buffer) Release() {
	if b.refs.Add(-1) == 0 {
		b.data = b.data[:0]
		b.pool.p.Put(b)
	}
}

// Bytes 返回当前内容
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Len 返回当前长度
func (b *Buffer) Len() int {
	return len(b.data)
}

// Resize 把长度调整为 n
//
// 容量不足时按 1.1 倍预留，减少后续增长；已有内容保留。
func (b *Buffer) Resize(n int) {
	if cap(b.data) < n {
		grown := make([]byte, n, n+n/10)
		copy(grown, b.data)
		b.data = grown
		return
	}
	b.data = b.data[:n]
}

// Append 追加内容并返回新长度
func (b *Buffer) Append(p []byte) int {
	b.data = append(b.data, p...)
	return len(b.data)
}
