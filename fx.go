package tcppubsub

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-tcppubsub/internal/executor"
)

// ════════════════════════════════════════════════════════════════════════════
//                              Fx 模块
// ════════════════════════════════════════════════════════════════════════════

// Module 返回提供执行器的 Fx 模块
//
// 执行器随应用生命周期启动与停止：OnStart 启动 threadCount 个
// 工作线程，OnStop 释放保活令牌并排空队列。发布端与订阅端
// 由应用在注入的执行器上自行构造。
//
// 使用方式：
//
//	app := fx.New(
//		tcppubsub.Module(4, nil),
//		tcppubsub.WithQuietFxLogger(),
//		fx.Invoke(func(exec *tcppubsub.Executor) { ... }),
//	)
func Module(threadCount int, sink LogFunc, opts ...ExecutorOption) fx.Option {
	return fx.Module("tcppubsub",
		fx.Provide(func() *Executor {
			return executor.New(sink, opts...)
		}),
		fx.Invoke(func(lc fx.Lifecycle, exec *Executor) {
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					exec.Start(threadCount)
					return nil
				},
				OnStop: func(_ context.Context) error {
					exec.Stop()
					return nil
				},
			})
		}),
	)
}

// WithQuietFxLogger 禁用 Fx 自身的日志输出（避免干扰用户日志）
func WithQuietFxLogger() fx.Option {
	return fx.Options(
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
		fx.NopLogger,
	)
}
