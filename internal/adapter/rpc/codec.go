// Package rpc holds the gRPC plumbing shared by the order API and the
// invoicing service: a JSON codec, error translation and interceptors.
package rpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// CodecName is the content subtype selected by clients with
// grpc.CallContentSubtype(CodecName).
const CodecName = "json"

// Codec marshals gRPC messages as JSON so services can be declared without
// generated protobuf stubs.
type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (Codec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (Codec) Name() string {
	return CodecName
}

func init() {
	encoding.RegisterCodec(Codec{})
}
