package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ugorji/go/codec"
)

var (
	ErrSerde       = errors.New("serde error")
	ErrUnknownType = errors.New("unknown event type")
)

var msgpackHandle = newMsgpackHandle()

func newMsgpackHandle() *codec.MsgpackHandle {
	h := &codec.MsgpackHandle{}
	h.WriteExt = true
	return h
}

// envelope is the tagged union container shared by both encodings
type envelope[T any] struct {
	Type EventType `json:"type"`
	Data T         `json:"data"`
}

type decodeFunc func(data []byte, unmarshal func([]byte, any) error) (Event, error)

func decodeAs[T any, PT interface {
	*T
	Event
}]() decodeFunc {
	return func(data []byte, unmarshal func([]byte, any) error) (Event, error) {
		var env envelope[*T]
		if err := unmarshal(data, &env); err != nil {
			return nil, err
		}
		if env.Data == nil {
			env.Data = new(T)
		}
		return PT(env.Data), nil
	}
}

var decoders = map[EventType]decodeFunc{
	TypeContactFound:   decodeAs[Contact](),
	TypeMessage:        decodeAs[Message](),
	TypeAcknowledge:    decodeAs[Acknowledge](),
	TypeFileStart:      decodeAs[FileStart](),
	TypeFileChunk:      decodeAs[FileChunk](),
	TypeContactConnect: decodeAs[ContactConnect](),
	TypeChatCreate:     decodeAs[ChatCreate](),
	TypeBroadcast:      decodeAs[Broadcast](),
	TypeCallInvoke:     decodeAs[CallInvoke](),
	TypeCallAnswer:     decodeAs[CallAnswer](),
	TypeCallReject:     decodeAs[CallReject](),
	TypeCallAudioData:  decodeAs[CallAudioData](),
}

func decode(data []byte, unmarshal func([]byte, any) error) (Event, error) {
	var head struct {
		Type EventType `json:"type"`
	}
	if err := unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerde, err)
	}

	fn, ok := decoders[head.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %w %q", ErrSerde, ErrUnknownType, head.Type)
	}

	event, err := fn(data, unmarshal)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrSerde, head.Type, err)
	}
	return event, nil
}

func unmarshalMsgpack(data []byte, v any) error {
	return codec.NewDecoderBytes(data, msgpackHandle).Decode(v)
}

// Marshal encodes any value with the wire encoding (MessagePack)
func Marshal(v any) ([]byte, error) {
	var out []byte
	if err := codec.NewEncoderBytes(&out, msgpackHandle).Encode(v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerde, err)
	}
	return out, nil
}

// Unmarshal decodes a wire encoded value into v
func Unmarshal(data []byte, v any) error {
	if err := unmarshalMsgpack(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrSerde, err)
	}
	return nil
}

// Encode serializes an event into its binary wire envelope
func Encode(e Event) ([]byte, error) {
	return Marshal(envelope[Event]{Type: e.Type(), Data: e})
}

// Decode parses a binary wire envelope
func Decode(data []byte) (Event, error) {
	return decode(data, unmarshalMsgpack)
}

// EncodeJSON serializes an event for the host application
func EncodeJSON(e Event) ([]byte, error) {
	out, err := json.MarshalIndent(envelope[Event]{Type: e.Type(), Data: e}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerde, err)
	}
	return out, nil
}

// DecodeJSON parses an event produced by EncodeJSON or by the host application
func DecodeJSON(data []byte) (Event, error) {
	return decode(data, json.Unmarshal)
}
