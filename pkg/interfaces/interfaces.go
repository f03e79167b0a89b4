// Package interfaces 定义 go-tcppubsub 的核心接口
//
// 内部实现通过编译期断言保证与这里的接口保持一致。
package interfaces

import "github.com/dep2p/go-tcppubsub/pkg/types"

// Executor 驱动所有套接字与回调的执行器
type Executor interface {
	// Start 启动指定数量的工作线程
	Start(threadCount int)

	// Stop 释放保活令牌并请求退出，已提交的任务允许跑完
	Stop()

	// Post 提交一个任务到某个工作线程
	Post(task func())
}

// Publisher 发布端
type Publisher interface {
	// Send 把各段 payload 拼成一帧发送给所有已连接的订阅者
	Send(payloads ...[]byte) bool

	// Port 返回实际监听端口（未运行时为 0）
	Port() uint16

	// SubscriberCount 返回当前已连接的订阅者数量
	SubscriberCount() int

	// IsRunning 返回发布端是否在运行
	IsRunning() bool

	// Cancel 关闭监听并断开所有会话，可重复调用
	Cancel()
}

// Subscriber 订阅端（多个会话的容器）
type Subscriber interface {
	// AddSession 新建一个会话，在给定的对端列表内做故障转移
	AddSession(peers []types.Endpoint, callback types.MessageCallback) (SubscriberSession, error)

	// Cancel 取消所有会话
	Cancel()
}

// SubscriberSession 订阅端单个连接会话
type SubscriberSession interface {
	// Cancel 终止会话，不再重连
	Cancel()

	// ConnectedEndpoint 返回当前连接的对端地址（未连接时为空串）
	ConnectedEndpoint() string
}
