package grpc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"

	"github.com/agentmesh/a2a-core/pkg/a2a"
)

// CodecName is the content-subtype both ends must request.
const CodecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

/*
jsonCodec carries every RPC payload as plain JSON, so the gRPC surface
shares one wire vocabulary with REST and JSON-RPC instead of a parallel
protobuf schema.
*/
type jsonCodec struct{}

func (jsonCodec) Name() string { return CodecName }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("json codec: %w", err)
	}
	return nil
}

/*
WireEvent adapts the event union to the codec: the kind discriminator is
inlined on marshal and drives concrete-type selection on unmarshal.
*/
type WireEvent struct {
	Event a2a.Event
}

func (w WireEvent) MarshalJSON() ([]byte, error) {
	return a2a.MarshalEvent(w.Event)
}

func (w *WireEvent) UnmarshalJSON(data []byte) error {
	event, err := a2a.UnmarshalEvent(data)
	if err != nil {
		return err
	}
	w.Event = event
	return nil
}
