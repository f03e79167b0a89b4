package subscriber

import "errors"

var (
	// ErrNilExecutor 执行器为 nil
	ErrNilExecutor = errors.New("subscriber: executor is nil")

	// ErrNoPeers 对端列表为空
	ErrNoPeers = errors.New("subscriber: peer list is empty")

	// ErrNilCallback 消息回调为 nil
	ErrNilCallback = errors.New("subscriber: callback is nil")

	// ErrFrameTooLarge 对端声明的帧长超出可分配范围
	ErrFrameTooLarge = errors.New("subscriber: frame too large")
)
