package wire

// 握手帧在 TCP 建立后由双方各发送一次，先于任何业务数据帧。
// payload 为 2 字节定长记录：{version u8, flags u8}。
// 接收端允许 payload 超过 2 字节（未来版本扩展），多余字节忽略。

// ProtocolVersion 当前协议版本
const ProtocolVersion uint8 = 0

// HandshakeSize 握手记录长度
const HandshakeSize = 2

// FlagTransientLocal 订阅端请求连接时回放保留帧
const FlagTransientLocal uint8 = 0x01

// MaxHandshakePayload 握手帧 payload 的合理上限
//
// 超过该值按协议错误处理，防止对端声明超大长度拖垮接收端。
const MaxHandshakePayload = 1024

// Handshake 握手记录
type Handshake struct {
	Version uint8
	Flags   uint8
}

// RequestsTransientLocal 返回对端是否请求了保留帧回放
func (h Handshake) RequestsTransientLocal() bool {
	return h.Flags&FlagTransientLocal != 0
}

// PutHandshake 把握手记录写入 dst 的前 2 字节
func PutHandshake(dst []byte, h Handshake) {
	dst[0] = h.Version
	dst[1] = h.Flags
}

// ParseHandshake 解析握手记录，忽略多余字节
func ParseHandshake(src []byte) (Handshake, error) {
	if len(src) < HandshakeSize {
		return Handshake{}, ErrShortHandshake
	}
	return Handshake{Version: src[0], Flags: src[1]}, nil
}

// AppendHandshakeFrame 把完整握手帧（头部加记录）追加到 dst
func AppendHandshakeFrame(dst []byte, h Handshake) []byte {
	var frame [HeaderSize + HandshakeSize]byte
	PutHeader(frame[:], ProtocolHandshake, HandshakeSize)
	PutHandshake(frame[HeaderSize:], h)
	return append(dst, frame[:]...)
}
