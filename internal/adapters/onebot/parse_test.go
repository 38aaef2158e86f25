package onebot

import (
	"encoding/json"
	"testing"

	"gitlab.com/timkado/api/message-snapper/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want domain.Message
	}{
		{
			name: "segment array",
			raw: `[{"type":"reply","data":{"id":"123"}},{"type":"at","data":{"qq":10001}},
				{"type":"text","data":{"text":" hi "}},{"type":"image","data":{"file":"a.jpg","url":"https://x/a.jpg"}},
				{"type":"face","data":{"id":14}},"garbage",{"data":{}}]`,
			want: domain.Message{
				{Type: domain.SegmentReply, RefID: "123"},
				{Type: domain.SegmentAt, Target: "10001"},
				{Type: domain.SegmentText, Text: " hi "},
				{Type: domain.SegmentImage, URL: "https://x/a.jpg", File: "a.jpg"},
				{Type: domain.SegmentFace, RefID: "14"},
			},
		},
		{
			name: "single object",
			raw:  `{"type":"text","data":{"text":"solo"}}`,
			want: domain.Message{{Type: domain.SegmentText, Text: "solo"}},
		},
		{
			name: "cq string",
			raw:  `"[CQ:reply,id=9]hello &#91;x&#93; [CQ:at,qq=all] [CQ:image,file=b.png,url=https://x/b.png?a=1&amp;b=2]"`,
			want: domain.Message{
				{Type: domain.SegmentReply, RefID: "9"},
				{Type: domain.SegmentText, Text: "hello [x] "},
				{Type: domain.SegmentAt, Target: "all"},
				{Type: domain.SegmentText, Text: " "},
				{Type: domain.SegmentImage, URL: "https://x/b.png?a=1&b=2", File: "b.png"},
			},
		},
		{
			name: "plain string",
			raw:  `"just text"`,
			want: domain.Message{{Type: domain.SegmentText, Text: "just text"}},
		},
		{
			name: "unknown segment type is kept",
			raw:  `[{"type":"record","data":{"file":"v.amr"}}]`,
			want: domain.Message{{Type: "record"}},
		},
		{
			name: "null",
			raw:  `null`,
			want: domain.Message{},
		},
		{
			name: "non-segment object becomes text",
			raw:  `{ "data": {"text": "x"} }`,
			want: domain.Message{{Type: domain.SegmentText, Text: `{"data":{"text":"x"}}`}},
		},
		{
			name: "number becomes text",
			raw:  `42`,
			want: domain.Message{{Type: domain.SegmentText, Text: "42"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMessage(json.RawMessage(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseMessage_Errors(t *testing.T) {
	_, err := ParseMessage(json.RawMessage(`{"data":`))
	assert.Error(t, err)

	_, err = ParseMessage(json.RawMessage(`[1,2`))
	assert.Error(t, err)
}

func TestDecodeSnapshotRequest(t *testing.T) {
	req, err := DecodeSnapshotRequest(domain.SnapshotRequestPayload{
		GroupID: 100,
		UserID:  7,
		Time:    1700000000,
		Message: json.RawMessage(`"hi [CQ:face,id=14]"`),
		Sender:  domain.SenderFields{Name: "Nick"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(100), req.GroupID)
	assert.Equal(t, "Nick", req.Sender.Name)
	assert.Equal(t, domain.Message{
		{Type: domain.SegmentText, Text: "hi "},
		{Type: domain.SegmentFace, RefID: "14"},
	}, req.Message)

	bad := []domain.SnapshotRequestPayload{
		{UserID: 7, Message: json.RawMessage(`"x"`)},
		{GroupID: 1, Message: json.RawMessage(`"x"`)},
		{GroupID: 1, UserID: 7, Message: json.RawMessage(`[1,2`)},
	}
	for _, p := range bad {
		_, err := DecodeSnapshotRequest(p)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	}
}
