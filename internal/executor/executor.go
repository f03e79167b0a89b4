// Package executor 实现驱动所有网络回调的执行器
//
// 原生 epoll 事件循环由 Go 运行时的 netpoller 承担，执行器保留
// 对使用方有意义的契约：Start(threadCount) 启动固定数量的工作线程
// 消费 Post 提交的任务；内部的保活令牌保证队列空闲时工作线程
// 不退出，直到 Stop 释放令牌。accept/读/写循环经 Go 作为独立
// goroutine 运行，执行器不跟踪也不等待它们；它们通过各自套接字的
// 关闭观察取消。
package executor

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/dep2p/go-tcppubsub/pkg/interfaces"
	"github.com/dep2p/go-tcppubsub/pkg/lib/log"
)

// 确保实现接口
var _ interfaces.Executor = (*Executor)(nil)

// Executor 执行器
type Executor struct {
	sink log.Func
	log  *log.LazyLogger

	namePrefix string

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	started bool
	// guard 为保活令牌：为 true 时队列空也不许工作线程退出
	guard bool

	ctx    context.Context
	cancel context.CancelFunc

	workers sync.WaitGroup
}

// Option 执行器选项
type Option func(*Executor)

// WithThreadNamePrefix 设置工作线程名前缀（仅 Linux 生效）
func WithThreadNamePrefix(prefix string) Option {
	return func(e *Executor) {
		e.namePrefix = prefix
	}
}

// New 创建执行器
//
// sink 为 nil 时日志走 slog 默认输出。
func New(sink log.Func, opts ...Option) *Executor {
	e := &Executor{
		sink:       sink,
		namePrefix: "TcpPubSubIO",
		guard:      true,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = log.LoggerWithSink("executor", sink)
	e.cond = sync.NewCond(&e.mu)
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.log.Debug("创建执行器")
	return e
}

// Sink 返回执行器的日志接收器
//
// 构造在此执行器上的发布端/订阅端共用同一个接收器。
func (e *Executor) Sink() log.Func {
	return e.sink
}

// Context 返回执行器生命周期 context
//
// Stop 会取消该 context，长任务在退避等待等阻塞点观察它。
func (e *Executor) Context() context.Context {
	return e.ctx
}

// Start 启动 threadCount 个工作线程
func (e *Executor) Start(threadCount int) {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.mu.Unlock()

	e.log.Debug("启动执行器", "threads", threadCount)
	for i := 0; i < threadCount; i++ {
		e.workers.Add(1)
		go e.worker(i)
	}
}

// Stop 释放保活令牌并请求退出
//
// 已入队的任务允许跑完；长任务通过 context 取消与套接字关闭退出，
// 这里不等待它们。
func (e *Executor) Stop() {
	e.log.Debug("停止执行器")

	e.mu.Lock()
	e.guard = false
	e.mu.Unlock()
	e.cond.Broadcast()

	e.cancel()
	e.workers.Wait()
}

// Post 提交一个任务到某个工作线程
//
// Stop 之后提交的任务被丢弃。
func (e *Executor) Post(task func()) {
	e.mu.Lock()
	if !e.guard {
		e.mu.Unlock()
		e.log.DebugVerbose("执行器已停止，任务被丢弃")
		return
	}
	e.queue = append(e.queue, task)
	e.mu.Unlock()
	e.cond.Signal()
}

// Go 启动一个长任务（accept/读/写循环）
//
// 长任务不计入保活令牌：Stop 不等待它们，任务通过自己的套接字
// 关闭或 Context 取消退出。
func (e *Executor) Go(fn func()) {
	go fn()
}

// worker 工作线程主循环
func (e *Executor) worker(index int) {
	defer e.workers.Done()

	// 线程命名只对固定的 OS 线程有意义
	runtime.LockOSThread()
	setThreadName(fmt.Sprintf("%s%d", e.namePrefix, index))
	e.log.Debug("工作线程开始运行", "index", index)

	for {
		e.mu.Lock()
		for len(e.queue) == 0 && e.guard {
			e.cond.Wait()
		}
		if len(e.queue) == 0 {
			// 保活令牌已释放且队列已排空
			e.mu.Unlock()
			e.log.Debug("工作线程退出", "index", index)
			return
		}
		task := e.queue[0]
		e.queue = e.queue[1:]
		e.mu.Unlock()

		task()
	}
}
