package tcppubsub

import (
	"github.com/dep2p/go-tcppubsub/internal/publisher"
	"github.com/dep2p/go-tcppubsub/internal/subscriber"
)

// 常用错误的根级再导出，便于调用方用 errors.Is 判断
var (
	// ErrPublisherAlreadyRunning 发布端已在运行
	ErrPublisherAlreadyRunning = publisher.ErrAlreadyRunning

	// ErrNoPeers 对端列表为空
	ErrNoPeers = subscriber.ErrNoPeers

	// ErrNilCallback 消息回调为 nil
	ErrNilCallback = subscriber.ErrNilCallback
)
