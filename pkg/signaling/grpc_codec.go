package signaling

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// jsonCodec is a hand-written encoding.Codec using JSON instead of protobuf
// wire encoding, registered under the "json" content-subtype, so the
// gRPC Signal stream needs no .proto/protoc toolchain (spec §4.7: "or
// equivalent gRPC bidirectional stream").
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return "json" }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
