package media

import (
	"time"

	"github.com/google/uuid"
)

// Message direction tags.
const (
	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
)

// Message type tags.
const (
	TypeText     = "text"
	TypeImage    = "image"
	TypeAudio    = "audio"
	TypeVideo    = "video"
	TypeDocument = "document"
	TypeMedia    = "media"
)

// User owns all messages and media for one phone identity. Created lazily
// on first contact.
type User struct {
	ID        uuid.UUID
	Phone     string
	CreatedAt time.Time
}

// Message is one immutable unit of conversation.
type Message struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Direction string
	Type      string
	Content   string
	Forwarded bool
	CreatedAt time.Time
}

// File is the metadata record for one stored binary. StorageKey is opaque
// to callers; only the blob store interprets it.
type File struct {
	ID          uuid.UUID
	MessageID   uuid.UUID
	UserID      uuid.UUID
	MediaType   string
	MIMEType    string
	SizeBytes   int64
	FileName    string
	Description string
	StorageKey  string
	OriginURL   string
	CreatedAt   time.Time
}

// TypeFromMIME buckets a MIME type into one of the message media types.
func TypeFromMIME(mime string) string {
	switch {
	case hasPrefixFold(mime, "image/"):
		return TypeImage
	case hasPrefixFold(mime, "audio/"):
		return TypeAudio
	case hasPrefixFold(mime, "video/"):
		return TypeVideo
	default:
		return TypeDocument
	}
}

func hasPrefixFold(s, prefix string) bool {
	if len(s) < len(prefix) {
		return false
	}
	for i := 0; i < len(prefix); i++ {
		c := s[i]
		if 'A' <= c && c <= 'Z' {
			c += 'a' - 'A'
		}
		if c != prefix[i] {
			return false
		}
	}
	return true
}
