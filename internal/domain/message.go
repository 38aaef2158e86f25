package domain

import "encoding/json"

// SegmentType identifies the kind of a message segment.
// Types not listed here are carried through verbatim and rendered as a bracketed label.
type SegmentType string

const (
	SegmentText  SegmentType = "text"
	SegmentImage SegmentType = "image"
	SegmentFace  SegmentType = "face"
	SegmentEmoji SegmentType = "emoji"
	SegmentAt    SegmentType = "at"
	SegmentReply SegmentType = "reply"
)

// Segment is one typed unit of a normalized chat message.
// Only the fields relevant to Type are populated.
type Segment struct {
	Type SegmentType `json:"type"`

	Text   string `json:"text,omitempty"`   // text, emoji
	URL    string `json:"url,omitempty"`    // image
	File   string `json:"file,omitempty"`   // image
	Target string `json:"target,omitempty"` // at: user id or "all"
	RefID  string `json:"ref_id,omitempty"` // reply: quoted message id; face: face id
}

// Message is an ordered list of segments, produced once by the platform adapter.
type Message []Segment

// SenderFields carries the sender details shipped with the message event itself.
// They are used when a fresh member lookup fails.
type SenderFields struct {
	Name  string `json:"name,omitempty"`
	Level string `json:"level,omitempty"`
	Title string `json:"title,omitempty"`
	Role  string `json:"role,omitempty"`
}

// SnapshotRequest is everything needed to render one message.
type SnapshotRequest struct {
	GroupID int64
	UserID  int64
	Message Message
	Time    int64 // unix seconds
	Sender  SenderFields
}

// FetchedMessage is a message looked up by id on the chat platform (used for reply previews).
type FetchedMessage struct {
	MessageID int64
	Time      int64
	Sender    Record // user_id, nickname, card
	Message   Message
}

// SnapshotRequestPayload is the wire form of a snapshot request accepted over HTTP and NATS.
// Message is the platform payload (segment array, CQ-code string or single segment object)
// and is normalized by the platform adapter before it reaches the application layer.
type SnapshotRequestPayload struct {
	GroupID int64           `json:"group_id"`
	UserID  int64           `json:"user_id"`
	Time    int64           `json:"time"`
	Message json.RawMessage `json:"message"`
	Sender  SenderFields    `json:"sender"`
}
