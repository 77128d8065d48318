package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvents() []Event {
	return []Event{
		&Contact{Address: "a1b2", Contact: ContactData{Name: "alice"}},
		&Message{ID: "m1", ChatID: "c1", Address: "a1b2", Timestamp: 1700000000000, Text: "hello"},
		&Acknowledge{ID: "m1", Kind: AckMessage},
		&FileStart{ID: "f1", ChatID: "c1", Address: "a1b2", Timestamp: 42, FileID: "file", FileName: "cat.png", FileSize: 1 << 20},
		&FileChunk{ID: "fc1", ChatID: "c1", Address: "a1b2", FileID: "file", Data: []byte{0, 1, 2, 0xff}},
		&ContactConnect{Address: "a1b2"},
		&ChatCreate{ChatID: "c1", ChatName: "friends", Address: "a1b2"},
		&Broadcast{ID: "b1", Address: "a1b2", Topic: "news", Data: []byte("payload")},
		&CallInvoke{ID: "ci", CallID: "call", Address: "a1b2"},
		&CallAnswer{ID: "ca", CallID: "call", Address: "a1b2"},
		&CallReject{ID: "cr", CallID: "call", Address: "a1b2"},
		&CallAudioData{Address: "a1b2", CallID: "call", Data: []byte{9, 8, 7}},
	}
}

func TestWireRoundTrip(t *testing.T) {
	for _, event := range sampleEvents() {
		t.Run(string(event.Type()), func(t *testing.T) {
			data, err := Encode(event)
			require.NoError(t, err)

			decoded, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, event, decoded)
			assert.Equal(t, event.EventID(), decoded.EventID())
		})
	}
}

func TestJSONRoundTrip(t *testing.T) {
	for _, event := range sampleEvents() {
		t.Run(string(event.Type()), func(t *testing.T) {
			data, err := EncodeJSON(event)
			require.NoError(t, err)

			decoded, err := DecodeJSON(data)
			require.NoError(t, err)
			assert.Equal(t, event, decoded)
		})
	}
}

func TestJSONShape(t *testing.T) {
	data, err := EncodeJSON(&Message{ID: "m1", ChatID: "c1", Address: "ab", Timestamp: 7, Text: "hi"})
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"type": "Message",
		"data": {"id": "m1", "chat_id": "c1", "address": "ab", "timestamp": 7, "text": "hi"}
	}`, string(data))
}

func TestDecodeJSONFromHost(t *testing.T) {
	event, err := DecodeJSON([]byte(`{"type":"ChatCreate","data":{"chat_id":"c9","chat_name":"team","address":"ff"}}`))
	require.NoError(t, err)

	chat, ok := event.(*ChatCreate)
	require.True(t, ok)
	assert.Equal(t, "c9", chat.ChatID)
	assert.Equal(t, "team", chat.ChatName)
	assert.Equal(t, AckChat, chat.AckKind())
}

func TestDecodeFailures(t *testing.T) {
	unknown, err := Marshal(map[string]any{"type": "Teleport", "data": map[string]any{}})
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"garbage", []byte{0xc1, 0xc1, 0xc1}},
		{"unknown type", unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			assert.True(t, errors.Is(err, ErrSerde), "got %v", err)
		})
	}

	_, err = Decode(unknown)
	assert.True(t, errors.Is(err, ErrUnknownType))

	_, err = DecodeJSON([]byte(`{"type":`))
	assert.True(t, errors.Is(err, ErrSerde))
}

func TestAnnounceDataRoundTrip(t *testing.T) {
	in := AnnounceData{Contact: ContactData{Name: "bob"}}

	data, err := Marshal(in)
	require.NoError(t, err)

	var out AnnounceData
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, in, out)

	assert.Error(t, Unmarshal([]byte{0xc1}, &out))
}
