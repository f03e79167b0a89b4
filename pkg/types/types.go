// Package types 定义 go-tcppubsub 的公共类型
package types

import (
	"net"
	"strconv"
	"time"
)

// ============================================================================
//                              配置类型
// ============================================================================

// TransientLocalSetting 发布端保留缓冲配置
//
// 发布端保留最近发送的若干帧，新订阅者完成握手后立即收到这些帧的回放。
// BufferMaxCount 为 0 时功能整体关闭。
type TransientLocalSetting struct {
	// BufferMaxCount 最大保留帧数（0 表示禁用保留）
	BufferMaxCount int

	// Lifespan 单帧最大保留时长（0 表示不按时间淘汰）
	Lifespan time.Duration
}

// Enabled 返回保留功能是否开启
func (s TransientLocalSetting) Enabled() bool {
	return s.BufferMaxCount > 0
}

// ============================================================================
//                              地址类型
// ============================================================================

// Endpoint TCP 对端地址
type Endpoint struct {
	Host string
	Port uint16
}

// String 返回 host:port 形式
func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(int(e.Port)))
}

// ============================================================================
//                              回调类型
// ============================================================================

// MessageCallback 订阅端消息回调
//
// data 是接收缓冲区的借用视图，回调返回后缓冲区会被复用；
// 需要保留数据时必须自行拷贝。
type MessageCallback func(data []byte)
