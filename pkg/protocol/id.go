package protocol

import (
	"time"

	"github.com/google/uuid"
)

// NewID generates a random event identifier
func NewID() string {
	return uuid.NewString()
}

// NowUnixMilli returns current time in Unix milliseconds
func NowUnixMilli() int64 {
	return time.Now().UnixMilli()
}

// FillIDs generates the ids and timestamps a client left empty
func FillIDs(event Event) {
	switch e := event.(type) {
	case *Message:
		if e.ID == "" {
			e.ID = NewID()
		}
		if e.Timestamp == 0 {
			e.Timestamp = NowUnixMilli()
		}
	case *FileStart:
		if e.ID == "" {
			e.ID = NewID()
		}
		if e.FileID == "" {
			e.FileID = NewID()
		}
		if e.Timestamp == 0 {
			e.Timestamp = NowUnixMilli()
		}
	case *FileChunk:
		if e.ID == "" {
			e.ID = NewID()
		}
	case *ChatCreate:
		if e.ChatID == "" {
			e.ChatID = NewID()
		}
	case *Broadcast:
		if e.ID == "" {
			e.ID = NewID()
		}
	case *CallInvoke:
		if e.ID == "" {
			e.ID = NewID()
		}
		if e.CallID == "" {
			e.CallID = NewID()
		}
	case *CallAnswer:
		if e.ID == "" {
			e.ID = NewID()
		}
	case *CallReject:
		if e.ID == "" {
			e.ID = NewID()
		}
	}
}
