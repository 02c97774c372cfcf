package rpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// codecName 对应 content-type application/grpc+json
const codecName = "json"

// jsonCodec 让内部调用直接复用 dto 上的 json tag，不需要另外维护 .proto
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return codecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
