package types

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// EncodePayload renders a job payload as a protobuf-serialized
// structpb.Struct, the wire format the write-ahead log uses to persist
// the payload on every event it appends. A nil payload encodes to nil bytes
// rather than an empty struct, so WAL replay can tell "no payload" apart
// from "empty object".
func EncodePayload(payload map[string]interface{}) ([]byte, error) {
	if payload == nil {
		return nil, nil
	}
	s, err := structpb.NewStruct(payload)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(s)
}

// DecodePayload reverses EncodePayload. Empty input decodes to a nil
// map, matching EncodePayload's nil-in/nil-out contract.
func DecodePayload(data []byte) (map[string]interface{}, error) {
	if len(data) == 0 {
		return nil, nil
	}
	s := &structpb.Struct{}
	if err := proto.Unmarshal(data, s); err != nil {
		return nil, err
	}
	return s.AsMap(), nil
}
