package tcppubsub

import (
	"github.com/dep2p/go-tcppubsub/internal/executor"
	"github.com/dep2p/go-tcppubsub/internal/publisher"
	"github.com/dep2p/go-tcppubsub/internal/subscriber"
	"github.com/dep2p/go-tcppubsub/pkg/interfaces"
	"github.com/dep2p/go-tcppubsub/pkg/lib/log"
	"github.com/dep2p/go-tcppubsub/pkg/types"
)

// Version 当前版本
const Version = "v0.1.0"

// ════════════════════════════════════════════════════════════════════════════
//                              类型别名
// ════════════════════════════════════════════════════════════════════════════

// TransientLocalSetting 发布端保留缓冲配置
type TransientLocalSetting = types.TransientLocalSetting

// Endpoint TCP 对端地址
type Endpoint = types.Endpoint

// MessageCallback 订阅端消息回调
type MessageCallback = types.MessageCallback

// LogFunc 日志接收器
type LogFunc = log.Func

// Executor 驱动所有套接字与回调的执行器
type Executor = executor.Executor

// ExecutorOption 执行器选项
type ExecutorOption = executor.Option

// Publisher 发布端
type Publisher = publisher.Publisher

// Subscriber 订阅端
type Subscriber = subscriber.Subscriber

// SubscriberSession 订阅端单个连接会话
type SubscriberSession = interfaces.SubscriberSession

// ════════════════════════════════════════════════════════════════════════════
//                              构造函数
// ════════════════════════════════════════════════════════════════════════════

// NewExecutor 创建执行器
//
// sink 为 nil 时日志走 slog 默认输出。发布端与订阅端都构造在
// 某个执行器之上，并共用它的日志接收器。
func NewExecutor(sink LogFunc, opts ...ExecutorOption) *Executor {
	return executor.New(sink, opts...)
}

// NewPublisher 创建发布端并开始监听
//
// addr 为空串时绑定 0.0.0.0。port 为 0 时由系统分配端口，
// 实际端口通过 Publisher.Port 查询。
func NewPublisher(exec *Executor, setting TransientLocalSetting, addr string, port uint16) (*Publisher, error) {
	p, err := publisher.New(exec, setting)
	if err != nil {
		return nil, err
	}
	if err := p.Start(addr, port); err != nil {
		return nil, err
	}
	return p, nil
}

// NewSubscriber 创建订阅端
//
// 会话通过 Subscriber.AddSession 添加。
func NewSubscriber(exec *Executor) (*Subscriber, error) {
	return subscriber.New(exec)
}
