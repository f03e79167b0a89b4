// Package wire 实现线上帧格式的编解码
//
// 每帧由固定 16 字节小端头部加 payload 组成：
//
//	偏移 0..2   header_size (u16 LE)，当前版本恒为 16
//	偏移 2      type (u8)
//	偏移 3      reserved (u8，置零)
//	偏移 4..12  data_size (u64 LE)
//	偏移 12..16 保留字节（置零）
//
// header_size 大于 16 时多出的字节属于未来版本的头部扩展，
// 接收端读完后直接丢弃。未知 type 的帧同样只丢弃不断连。
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// HeaderSize 当前版本头部长度
const HeaderSize = 16

// ContentType 帧内容类型
type ContentType uint8

const (
	// RegularPayload 普通业务数据帧
	RegularPayload ContentType = 0

	// ProtocolHandshake 协议握手帧
	ProtocolHandshake ContentType = 1
)

// String 返回内容类型的显示名称
func (t ContentType) String() string {
	switch t {
	case RegularPayload:
		return "RegularPayload"
	case ProtocolHandshake:
		return "ProtocolHandshake"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(t))
	}
}

// Header 帧头部
type Header struct {
	HeaderSize uint16
	Type       ContentType
	DataSize   uint64
}

// PutHeader 把头部写入 dst 的前 16 字节
//
// dst 长度必须不小于 HeaderSize。
func PutHeader(dst []byte, typ ContentType, dataSize uint64) {
	binary.LittleEndian.PutUint16(dst[0:2], HeaderSize)
	dst[2] = byte(typ)
	dst[3] = 0
	binary.LittleEndian.PutUint64(dst[4:12], dataSize)
	for i := 12; i < HeaderSize; i++ {
		dst[i] = 0
	}
}

// ParseHeader 解析 16 字节头部
func ParseHeader(src []byte) (Header, error) {
	if len(src) < HeaderSize {
		return Header{}, ErrShortHeader
	}
	h := Header{
		HeaderSize: binary.LittleEndian.Uint16(src[0:2]),
		Type:       ContentType(src[2]),
		DataSize:   binary.LittleEndian.Uint64(src[4:12]),
	}
	if h.HeaderSize < HeaderSize {
		return Header{}, fmt.Errorf("%w: header_size=%d", ErrInvalidHeader, h.HeaderSize)
	}
	return h, nil
}

// ReadHeader 从流中读取一个头部
//
// scratch 长度必须不小于 HeaderSize，用于避免每帧分配。
// header_size 超过 16 的部分被读出并丢弃（向前兼容）。
func ReadHeader(r io.Reader, scratch []byte) (Header, error) {
	if _, err := io.ReadFull(r, scratch[:HeaderSize]); err != nil {
		return Header{}, err
	}
	h, err := ParseHeader(scratch[:HeaderSize])
	if err != nil {
		return Header{}, err
	}
	if extra := int64(h.HeaderSize) - HeaderSize; extra > 0 {
		if _, err := io.CopyN(io.Discard, r, extra); err != nil {
			return Header{}, err
		}
	}
	return h, nil
}

// DiscardPayload 丢弃一帧的 payload
func DiscardPayload(r io.Reader, h Header) error {
	if h.DataSize == 0 {
		return nil
	}
	_, err := io.CopyN(io.Discard, r, int64(h.DataSize))
	return err
}
