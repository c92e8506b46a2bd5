package serializer

import (
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

type msgPackCodec struct{}

func (*msgPackCodec) Name() string { return "msgpack" }

func (c *msgPackCodec) Unmarshal(data []byte, v interface{}) error {
	if len(data) == 0 || v == nil {
		return errors.Wrapf(ErrUnmarshal, "%s: empty input", c.Name())
	}
	if err := msgpack.Unmarshal(data, v); err != nil {
		return errors.Wrapf(ErrUnmarshal, "%s: %v", c.Name(), err)
	}
	return nil
}

func (c *msgPackCodec) Marshal(v interface{}) ([]byte, error) {
	if v == nil {
		return nil, errors.Wrapf(ErrMarshal, "%s: nil value", c.Name())
	}
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, errors.Wrapf(ErrMarshal, "%s: %v", c.Name(), err)
	}
	return data, nil
}
