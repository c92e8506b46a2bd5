// Package serializer 通用编解码器：消息线格式用 msgpack，快照上报可选 json
package serializer

import "errors"

// ICodec 编解码接口
type ICodec interface {
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) error
	Name() string
}

var (
	// ErrMarshal 编码失败，具体原因附在错误信息里
	ErrMarshal = errors.New("serializer marshal failed")
	// ErrUnmarshal 解码失败或输入为空
	ErrUnmarshal = errors.New("serializer unmarshal failed")
)

var (
	Json    ICodec = new(jsonCodec)
	MsgPack ICodec = new(msgPackCodec)
)

// Get 按名字取编解码器，未知名字返回 nil
func Get(name string) ICodec {
	switch name {
	case "json":
		return Json
	case "msgpack", "":
		return MsgPack
	default:
		return nil
	}
}
