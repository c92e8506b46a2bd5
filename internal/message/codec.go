package message

import (
	"github.com/dzm2020/regflow/pkg/register"
	"github.com/dzm2020/regflow/pkg/utils/serializer"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// ICodec 消息编解码，只有跨进程传输才需要
type ICodec interface {
	Name() string
	Encode(m *Message) ([]byte, error)
	Decode(data []byte) (*Message, error)
}

var (
	MsgPack ICodec = msgpackCodec{}
	Wire    ICodec = wireCodec{}
)

// CodecByName 按名字取编解码器，默认 msgpack
func CodecByName(name string) (ICodec, error) {
	switch name {
	case "", "msgpack":
		return MsgPack, nil
	case "wire", "protowire":
		return Wire, nil
	default:
		return nil, errors.Errorf("unknown message codec %q", name)
	}
}

// outbound 拷贝一份消息，把寄存器数据放进 Payload
func outbound(m *Message) *Message {
	out := *m
	out.Reg = nil
	if m.Kind == KindRegisterAvailable && m.Payload == nil && m.Reg != nil {
		out.Payload = m.Reg.Blob()
	}
	return &out
}

// inbound 收到的数据还原成镜像寄存器
func inbound(m *Message) *Message {
	if m.Kind == KindRegisterAvailable && m.Payload != nil {
		m.Reg = register.NewMirror(m.RegisterID, m.Slot, m.Src, m.Payload, m.Meta)
		m.Payload = nil
	}
	return m
}

type msgpackCodec struct{}

func (msgpackCodec) Name() string { return "msgpack" }

func (msgpackCodec) Encode(m *Message) ([]byte, error) {
	if m == nil {
		return nil, errors.New("encode nil message")
	}
	return serializer.MsgPack.Marshal(outbound(m))
}

func (msgpackCodec) Decode(data []byte) (*Message, error) {
	m := &Message{}
	if err := serializer.MsgPack.Unmarshal(data, m); err != nil {
		return nil, err
	}
	return inbound(m), nil
}

// wireCodec 手写的 protobuf 线格式，不依赖生成代码
type wireCodec struct{}

const (
	fieldKind protowire.Number = iota + 1
	fieldSrc
	fieldDst
	fieldRegister
	fieldSlot
	fieldPiece
	fieldCol
	fieldMaxCol
	fieldAct
	fieldCommand
	fieldPayload
)

const (
	blobData protowire.Number = iota + 1
	blobShape
	blobDType
	blobValid
	blobHasValid
)

func (wireCodec) Name() string { return "wire" }

func appendSint(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeZigZag(v))
}

func (wireCodec) Encode(m *Message) ([]byte, error) {
	if m == nil {
		return nil, errors.New("encode nil message")
	}
	m = outbound(m)
	b := make([]byte, 0, 64)
	b = protowire.AppendTag(b, fieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Kind))
	b = appendSint(b, fieldSrc, m.Src)
	b = appendSint(b, fieldDst, m.Dst)
	b = appendSint(b, fieldRegister, m.RegisterID)
	if m.Slot != "" {
		b = protowire.AppendTag(b, fieldSlot, protowire.BytesType)
		b = protowire.AppendString(b, m.Slot)
	}
	b = appendSint(b, fieldPiece, m.Meta.PieceID)
	b = appendSint(b, fieldCol, m.Meta.ColID)
	b = appendSint(b, fieldMaxCol, m.Meta.MaxColID)
	b = appendSint(b, fieldAct, m.Meta.ActID)
	if m.Command != 0 {
		b = protowire.AppendTag(b, fieldCommand, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.Command))
	}
	if m.Payload != nil {
		b = protowire.AppendTag(b, fieldPayload, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeBlob(m.Payload))
	}
	return b, nil
}

func encodeBlob(blob *register.Blob) []byte {
	b := make([]byte, 0, len(blob.Data)+32)
	b = protowire.AppendTag(b, blobData, protowire.BytesType)
	b = protowire.AppendBytes(b, blob.Data)
	for _, d := range blob.Shape {
		b = protowire.AppendTag(b, blobShape, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(d))
	}
	b = protowire.AppendTag(b, blobDType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(blob.DType))
	if blob.ValidNum != nil {
		b = protowire.AppendTag(b, blobHasValid, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
		for _, v := range blob.ValidNum {
			b = protowire.AppendTag(b, blobValid, protowire.VarintType)
			b = protowire.AppendVarint(b, protowire.EncodeZigZag(v))
		}
	}
	return b
}

func (wireCodec) Decode(data []byte) (*Message, error) {
	m := &Message{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		data = data[n:]
		switch {
		case typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			data = data[n:]
			switch num {
			case fieldKind:
				m.Kind = Kind(v)
			case fieldSrc:
				m.Src = protowire.DecodeZigZag(v)
			case fieldDst:
				m.Dst = protowire.DecodeZigZag(v)
			case fieldRegister:
				m.RegisterID = protowire.DecodeZigZag(v)
			case fieldPiece:
				m.Meta.PieceID = protowire.DecodeZigZag(v)
			case fieldCol:
				m.Meta.ColID = protowire.DecodeZigZag(v)
			case fieldMaxCol:
				m.Meta.MaxColID = protowire.DecodeZigZag(v)
			case fieldAct:
				m.Meta.ActID = protowire.DecodeZigZag(v)
			case fieldCommand:
				m.Command = Command(v)
			}
		case typ == protowire.BytesType && num == fieldSlot:
			s, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			data = data[n:]
			m.Slot = s
		case typ == protowire.BytesType && num == fieldPayload:
			raw, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			data = data[n:]
			blob, err := decodeBlob(raw)
			if err != nil {
				return nil, err
			}
			m.Payload = blob
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	if m.Kind < KindRegisterAvailable || m.Kind > KindCommand {
		return nil, errors.Errorf("decode message: bad kind %d", m.Kind)
	}
	return inbound(m), nil
}

func decodeBlob(data []byte) (*register.Blob, error) {
	blob := &register.Blob{}
	hasValid := false
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		data = data[n:]
		if num == blobData && typ == protowire.BytesType {
			raw, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			data = data[n:]
			blob.Data = append([]byte(nil), raw...)
			continue
		}
		if typ != protowire.VarintType {
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			data = data[n:]
			continue
		}
		v, n := protowire.ConsumeVarint(data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		data = data[n:]
		switch num {
		case blobShape:
			blob.Shape = append(blob.Shape, protowire.DecodeZigZag(v))
		case blobDType:
			blob.DType = register.DataType(v)
		case blobValid:
			blob.ValidNum = append(blob.ValidNum, protowire.DecodeZigZag(v))
		case blobHasValid:
			hasValid = v != 0
		}
	}
	if hasValid && blob.ValidNum == nil {
		blob.ValidNum = []int64{}
	}
	return blob, nil
}
