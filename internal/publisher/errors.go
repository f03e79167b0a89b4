package publisher

import "errors"

var (
	// ErrAlreadyRunning 发布端已在运行
	ErrAlreadyRunning = errors.New("publisher: already running")

	// ErrNilExecutor 执行器为 nil
	ErrNilExecutor = errors.New("publisher: executor is nil")
)
