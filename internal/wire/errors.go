package wire

import "errors"

var (
	// ErrShortHeader 头部不足 16 字节
	ErrShortHeader = errors.New("wire: short header")

	// ErrInvalidHeader 头部字段非法
	ErrInvalidHeader = errors.New("wire: invalid header")

	// ErrShortHandshake 握手记录不足 2 字节
	ErrShortHandshake = errors.New("wire: short handshake record")

	// ErrUnexpectedFrameType 握手阶段收到非握手帧
	ErrUnexpectedFrameType = errors.New("wire: unexpected frame type during handshake")
)
