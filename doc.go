// Package tcppubsub 是一个可内嵌的 TCP 发布/订阅消息库
//
// 发布端绑定一个监听端口，接受任意数量的订阅者连接，把不透明的
// 字节 payload 按帧扇出给所有已连接的订阅者。订阅端拨号一个或
// 多个发布端（带故障转移），通过回调接收解帧后的 payload。
// 每个订阅者对应一条持久的单向 TCP 字节流，库不解释 payload 内容。
//
// # 基本用法
//
//	exec := tcppubsub.NewExecutor(nil)
//	exec.Start(4)
//	defer exec.Stop()
//
//	pub, err := tcppubsub.NewPublisher(exec, tcppubsub.TransientLocalSetting{}, "127.0.0.1", 9000)
//	if err != nil {
//		// ...
//	}
//	defer pub.Cancel()
//	pub.Send([]byte("hello"))
//
//	sub, err := tcppubsub.NewSubscriber(exec)
//	if err != nil {
//		// ...
//	}
//	defer sub.Cancel()
//	sub.AddSession([]tcppubsub.Endpoint{{Host: "127.0.0.1", Port: 9000}}, func(data []byte) {
//		// data 为借用视图，返回后失效
//	})
//
// # 保留帧回放（transient-local）
//
// 发布端可以按条数与时龄保留最近发送的帧，新订阅者完成握手后
// 立即收到这些帧的回放，先于任何后续的新帧。
//
//	setting := tcppubsub.TransientLocalSetting{BufferMaxCount: 10, Lifespan: time.Minute}
//	pub, err := tcppubsub.NewPublisher(exec, setting, "", 9000)
//
// # 背压
//
// 每个订阅者会话同一时刻只允许一个在途写。写仍在进行时到达的
// 新帧覆盖待写槽（保留最新帧），发布端因此永不阻塞，慢订阅者
// 只会丢帧，不会拖慢其他订阅者。
package tcppubsub
