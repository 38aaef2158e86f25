package onebot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"gitlab.com/timkado/api/message-snapper/internal/domain"
)

var cqPattern = regexp.MustCompile(`\[CQ:([a-zA-Z0-9_]+)(?:,([^\]]*))?\]`)

var cqUnescaper = strings.NewReplacer("&#44;", ",", "&#91;", "[", "&#93;", "]", "&amp;", "&")

type rawSegment struct {
	Type string        `json:"type"`
	Data domain.Record `json:"data"`
}

// ParseMessage normalizes a OneBot v11 message payload into segments. It accepts a
// segment array, a single segment object or a CQ-code string. Array items that are not
// segment objects are skipped. Any other JSON value, including an object that is not a
// segment, is rendered as text.
func ParseMessage(raw json.RawMessage) (domain.Message, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return domain.Message{}, nil
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, fmt.Errorf("decode message string: %w", err)
		}
		return ParseCQString(s), nil
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("decode message array: %w", err)
		}
		msg := make(domain.Message, 0, len(items))
		for _, item := range items {
			if seg, ok := decodeSegment(item); ok {
				msg = append(msg, seg)
			}
		}
		return msg, nil
	case '{':
		if seg, ok := decodeSegment(trimmed); ok {
			return domain.Message{seg}, nil
		}
		if !json.Valid(trimmed) {
			return nil, fmt.Errorf("decode message object: %s", truncate(string(trimmed), 64))
		}
		// Not a segment: show the payload itself rather than nothing.
		var compact bytes.Buffer
		if err := json.Compact(&compact, trimmed); err != nil {
			return nil, fmt.Errorf("compact message object: %w", err)
		}
		return domain.Message{{Type: domain.SegmentText, Text: compact.String()}}, nil
	default:
		return domain.Message{{Type: domain.SegmentText, Text: string(trimmed)}}, nil
	}
}

func decodeSegment(raw json.RawMessage) (domain.Segment, bool) {
	var rs rawSegment
	if err := json.Unmarshal(raw, &rs); err != nil || rs.Type == "" {
		return domain.Segment{}, false
	}
	return newSegment(rs.Type, rs.Data), true
}

// newSegment maps OneBot segment data onto the fields the renderer consumes.
func newSegment(typ string, data domain.Record) domain.Segment {
	seg := domain.Segment{Type: domain.SegmentType(typ)}
	switch seg.Type {
	case domain.SegmentText, domain.SegmentEmoji:
		seg.Text = data.String("text")
	case domain.SegmentImage:
		seg.URL = strings.TrimSpace(data.String("url"))
		seg.File = strings.TrimSpace(data.String("file"))
	case domain.SegmentFace, domain.SegmentReply:
		seg.RefID = strings.TrimSpace(data.String("id"))
	case domain.SegmentAt:
		seg.Target = strings.TrimSpace(data.String("qq"))
	}
	return seg
}

// ParseCQString splits a CQ-coded string into segments. Text between codes is unescaped
// and kept verbatim, whitespace included.
func ParseCQString(content string) domain.Message {
	matches := cqPattern.FindAllStringSubmatchIndex(content, -1)
	msg := make(domain.Message, 0, len(matches)+1)
	cursor := 0
	for _, m := range matches {
		if m[0] > cursor {
			msg = append(msg, domain.Segment{Type: domain.SegmentText, Text: cqUnescaper.Replace(content[cursor:m[0]])})
		}
		typ := content[m[2]:m[3]]
		params := ""
		if m[4] >= 0 {
			params = content[m[4]:m[5]]
		}
		msg = append(msg, newSegment(typ, parseCQParams(params)))
		cursor = m[1]
	}
	if cursor < len(content) {
		msg = append(msg, domain.Segment{Type: domain.SegmentText, Text: cqUnescaper.Replace(content[cursor:])})
	}
	return msg
}

func parseCQParams(params string) domain.Record {
	out := domain.Record{}
	if params == "" {
		return out
	}
	for _, item := range strings.Split(params, ",") {
		key, value, ok := strings.Cut(item, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		out[key] = cqUnescaper.Replace(value)
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
