package serializer

import (
	"encoding/json"

	"github.com/pkg/errors"
)

type jsonCodec struct{}

func (*jsonCodec) Name() string { return "json" }

func (c *jsonCodec) Unmarshal(data []byte, v interface{}) error {
	if len(data) == 0 || v == nil {
		return errors.Wrapf(ErrUnmarshal, "%s: empty input", c.Name())
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrapf(ErrUnmarshal, "%s: %v", c.Name(), err)
	}
	return nil
}

func (c *jsonCodec) Marshal(v interface{}) ([]byte, error) {
	if v == nil {
		return nil, errors.Wrapf(ErrMarshal, "%s: nil value", c.Name())
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrapf(ErrMarshal, "%s: %v", c.Name(), err)
	}
	return data, nil
}
