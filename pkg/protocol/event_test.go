package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventIdentifiers(t *testing.T) {
	tests := []struct {
		event   Event
		id      string
		kind    AcknowledgeKind
		request bool
	}{
		{&Contact{Address: "peer"}, "peer", AckGeneric, false},
		{&Message{ID: "m"}, "m", AckMessage, true},
		{&Acknowledge{ID: "a", Kind: AckFileChunk}, "a", AckGeneric, false},
		{&FileStart{ID: "fs"}, "fs", AckFileStart, true},
		{&FileChunk{ID: "fc"}, "fc", AckFileChunk, true},
		{&ContactConnect{Address: "peer"}, "peer", AckGeneric, false},
		{&ChatCreate{ChatID: "chat"}, "chat", AckChat, true},
		{&Broadcast{ID: "b"}, "b", AckGeneric, false},
		{&CallInvoke{ID: "ci"}, "ci", AckCallInvoke, true},
		{&CallAnswer{ID: "ca"}, "ca", AckCallAnswer, true},
		{&CallReject{ID: "cr"}, "cr", AckCallReject, true},
		{&CallAudioData{CallID: "call"}, "call", AckGeneric, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.event.Type()), func(t *testing.T) {
			assert.Equal(t, tt.id, tt.event.EventID())
			assert.Equal(t, tt.kind, tt.event.AckKind())
			assert.Equal(t, tt.request, IsRequest(tt.event))
		})
	}
}

func TestSetPeerAddress(t *testing.T) {
	for _, event := range sampleEvents() {
		event.SetPeerAddress("me")
		if event.Type() == TypeAcknowledge {
			assert.Empty(t, event.PeerAddress())
			continue
		}
		assert.Equal(t, "me", event.PeerAddress(), "type %s", event.Type())
	}
}

func TestNewID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewID()
		assert.Len(t, id, 36)
		assert.False(t, seen[id])
		seen[id] = true
	}
	assert.Greater(t, NowUnixMilli(), int64(0))
}

func TestFillIDs(t *testing.T) {
	msg := &Message{Text: "hi"}
	FillIDs(msg)
	assert.NotEmpty(t, msg.ID)
	assert.NotZero(t, msg.Timestamp)

	kept := &Message{ID: "fixed", Timestamp: 7}
	FillIDs(kept)
	assert.Equal(t, "fixed", kept.ID)
	assert.Equal(t, int64(7), kept.Timestamp)

	call := &CallInvoke{}
	FillIDs(call)
	assert.NotEmpty(t, call.ID)
	assert.NotEmpty(t, call.CallID)
	assert.NotEqual(t, call.ID, call.CallID)

	file := &FileStart{}
	FillIDs(file)
	assert.NotEmpty(t, file.FileID)

	audio := &CallAudioData{CallID: "c"}
	FillIDs(audio)
	assert.Equal(t, "c", audio.CallID)
}
