package application

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"gitlab.com/timkado/api/message-snapper/benchmarks/mocks"
	"gitlab.com/timkado/api/message-snapper/internal/adapters/config"
	"gitlab.com/timkado/api/message-snapper/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapperFixture struct {
	snapper  *MessageSnapper
	chat     *mocks.MockChatClient
	renderer *mocks.MockRenderer
	logger   *mocks.MockLogger
	cfg      *mocks.MockConfigProvider
}

func newSnapperFixture(t *testing.T) *snapperFixture {
	t.Helper()
	cfg := mocks.NewMockConfigProvider(t.TempDir())
	logger := mocks.NewMockLogger()
	chat := mocks.NewMockChatClient()
	renderer := mocks.NewMockRenderer([]byte("PNGDATA"))
	cache := NewCacheManager(logger, cfg, mocks.NewMemorySnapshotStore(nil))
	assets := NewAssetCache(logger, cfg, nil)
	return &snapperFixture{
		snapper:  NewMessageSnapper(logger, cfg, cache, assets, chat, renderer),
		chat:     chat,
		renderer: renderer,
		logger:   logger,
		cfg:      cfg,
	}
}

func text(s string) domain.Segment { return domain.Segment{Type: domain.SegmentText, Text: s} }

func TestMessageSnapper_GetGroupInfo(t *testing.T) {
	t.Run("fallback on lookup failure", func(t *testing.T) {
		f := newSnapperFixture(t)
		rec := f.snapper.GetGroupInfo(context.Background(), 100)
		assert.Equal(t, domain.Record{"group_name": "unknown", "member_count": 0}, rec)
		assert.Equal(t, 0, f.snapper.CacheStats().Groups, "fallback must not be cached")
	})

	t.Run("read through and write back", func(t *testing.T) {
		f := newSnapperFixture(t)
		f.chat.SetGroup(100, domain.Record{"group_name": "Gophers", "member_count": float64(12)})

		for i := 0; i < 3; i++ {
			rec := f.snapper.GetGroupInfo(context.Background(), 100)
			assert.Equal(t, "Gophers", rec.String("group_name"))
		}
		assert.Equal(t, int64(1), f.chat.GroupCalls)
	})
}

func TestMessageSnapper_GetMemberInfo(t *testing.T) {
	f := newSnapperFixture(t)
	assert.Empty(t, f.snapper.GetMemberInfo(context.Background(), 1, 2))

	f.chat.SetMember(1, 2, domain.Record{"card": "Ann"})
	assert.Equal(t, "Ann", f.snapper.GetMemberInfo(context.Background(), 1, 2).String("card"))
	f.snapper.GetMemberInfo(context.Background(), 1, 2)
	assert.Equal(t, int64(2), f.chat.MemberCalls)
}

func TestMessageSnapper_GenerateSnapshot(t *testing.T) {
	ts := time.Date(2024, 5, 6, 7, 8, 0, 0, time.UTC).Unix()

	t.Run("renders template data from metadata", func(t *testing.T) {
		f := newSnapperFixture(t)
		f.chat.SetGroup(100, domain.Record{"group_name": "Gophers", "member_count": float64(12)})
		f.chat.SetMember(100, 7, domain.Record{"card": "", "nickname": "Nick", "level": "5", "title": "Sage", "role": "admin"})

		img, err := f.snapper.GenerateSnapshot(context.Background(), domain.SnapshotRequest{
			GroupID: 100,
			UserID:  7,
			Time:    ts,
			Message: domain.Message{text("hello  "), text("  world")},
		})
		require.NoError(t, err)
		assert.Equal(t, []byte("PNGDATA"), img)

		calls := f.renderer.Calls()
		require.Len(t, calls, 1)
		assert.Equal(t, "default.html", calls[0].Template)
		data := calls[0].Data
		assert.Equal(t, "Gophers", data["group_name"])
		assert.Equal(t, int64(12), data["member_count"])
		assert.Equal(t, "Nick", data["sender_name"])
		assert.Equal(t, int64(7), data["sender_id"])
		assert.Equal(t, "5", data["level"])
		assert.Equal(t, "Sage", data["title"])
		assert.Equal(t, "admin", data["role"])
		assert.Equal(t, "https://q1.qlogo.cn/g?b=qq&nk=7&s=640", data["avatar_url"])
		assert.Equal(t, "2024-05-06 07:08", data["time"])
		assert.Equal(t, config.DefaultFontFamily, data["font_family"])
		assert.Equal(t, []RenderSegment{{Type: domain.SegmentText, Content: "hello world"}}, data["message_segments"])
		assert.Equal(t, "hello world", data["message_content"])
		assert.Equal(t, false, data["single_image_only"])
		assert.Nil(t, data["reply_preview"].(*ReplyPreview))
		assert.True(t, f.logger.HasMessage("INFO", "成功生成消息快照"))
	})

	t.Run("falls back to sender fields when member lookup fails", func(t *testing.T) {
		f := newSnapperFixture(t)
		_, err := f.snapper.GenerateSnapshot(context.Background(), domain.SnapshotRequest{
			GroupID: 1, UserID: 2, Time: ts,
			Message: domain.Message{text("hi")},
			Sender:  domain.SenderFields{Name: "Event Name", Level: "2", Role: "member"},
		})
		require.NoError(t, err)

		data := f.renderer.Calls()[0].Data
		assert.Equal(t, "Event Name", data["sender_name"])
		assert.Equal(t, "2", data["level"])
		assert.Equal(t, "", data["title"])
		assert.Equal(t, "member", data["role"])
		assert.Equal(t, "unknown", data["group_name"])
		assert.Equal(t, int64(0), data["member_count"])
	})

	t.Run("unknown sender name defaults", func(t *testing.T) {
		f := newSnapperFixture(t)
		_, err := f.snapper.GenerateSnapshot(context.Background(), domain.SnapshotRequest{
			GroupID: 1, UserID: 2, Message: domain.Message{text("hi")},
		})
		require.NoError(t, err)
		data := f.renderer.Calls()[0].Data
		assert.Equal(t, "unknown", data["sender_name"])
		assert.Equal(t, "未知时间", data["time"])
	})

	t.Run("empty message is rejected without rendering", func(t *testing.T) {
		f := newSnapperFixture(t)
		_, err := f.snapper.GenerateSnapshot(context.Background(), domain.SnapshotRequest{
			GroupID: 1, UserID: 2,
			Message: domain.Message{text(""), {Type: domain.SegmentReply, RefID: "not-a-number"}},
		})
		assert.ErrorIs(t, err, ErrUnsupportedMessage)
		assert.Empty(t, f.renderer.Calls())
		assert.Equal(t, int64(0), f.chat.GroupCalls)
	})

	t.Run("reply-only message renders with preview", func(t *testing.T) {
		f := newSnapperFixture(t)
		f.chat.SetMessage(&domain.FetchedMessage{
			MessageID: 55,
			Time:      ts,
			Sender:    domain.Record{"user_id": float64(9), "nickname": "Quoted"},
			Message: domain.Message{
				{Type: domain.SegmentReply, RefID: "54"},
				text("original"),
				{Type: domain.SegmentImage, URL: "https://img/x.png"},
			},
		})

		_, err := f.snapper.GenerateSnapshot(context.Background(), domain.SnapshotRequest{
			GroupID: 1, UserID: 2, Time: ts,
			Message: domain.Message{{Type: domain.SegmentReply, RefID: "55"}},
		})
		require.NoError(t, err)

		preview := f.renderer.Calls()[0].Data["reply_preview"].(*ReplyPreview)
		require.NotNil(t, preview)
		assert.Equal(t, "Quoted", preview.SenderName)
		assert.Equal(t, "2024-05-06 07:08", preview.Time)
		assert.Equal(t, "original[图片]", preview.Content)
		assert.Len(t, preview.Segments, 2)
		assert.Equal(t, int64(1), f.chat.MessageCalls, "nested replies are not followed")
	})

	t.Run("failed reply lookup yields no preview", func(t *testing.T) {
		f := newSnapperFixture(t)
		_, err := f.snapper.GenerateSnapshot(context.Background(), domain.SnapshotRequest{
			GroupID: 1, UserID: 2,
			Message: domain.Message{{Type: domain.SegmentReply, RefID: "99"}},
		})
		assert.ErrorIs(t, err, ErrUnsupportedMessage)
	})

	t.Run("renderer failure is wrapped", func(t *testing.T) {
		f := newSnapperFixture(t)
		f.renderer.Err = errors.New("chromium crashed")
		_, err := f.snapper.GenerateSnapshot(context.Background(), domain.SnapshotRequest{
			GroupID: 1, UserID: 2, Message: domain.Message{text("hi")},
		})
		assert.ErrorIs(t, err, ErrRenderFailed)
		assert.Contains(t, err.Error(), "chromium crashed")
	})

	t.Run("single image flag", func(t *testing.T) {
		f := newSnapperFixture(t)
		_, err := f.snapper.GenerateSnapshot(context.Background(), domain.SnapshotRequest{
			GroupID: 1, UserID: 2,
			Message: domain.Message{{Type: domain.SegmentImage, File: "abc.image"}},
		})
		require.NoError(t, err)
		data := f.renderer.Calls()[0].Data
		assert.Equal(t, true, data["single_image_only"])
		assert.Equal(t, "[图片]", data["message_content"])
	})
}

func TestMessageSnapper_ExtractSegments(t *testing.T) {
	f := newSnapperFixture(t)
	f.chat.SetMember(1, 10, domain.Record{"card": "Carded", "nickname": "Nick"})
	f.chat.SetMember(1, 11, domain.Record{"nickname": "OnlyNick"})

	tests := []struct {
		name string
		msg  domain.Message
		want []RenderSegment
	}{
		{
			name: "image without source becomes placeholder text",
			msg:  domain.Message{{Type: domain.SegmentImage}},
			want: []RenderSegment{{Type: domain.SegmentText, Content: "[图片]"}},
		},
		{
			name: "image prefers url over file",
			msg:  domain.Message{{Type: domain.SegmentImage, URL: "u", File: "f"}},
			want: []RenderSegment{{Type: domain.SegmentImage, Content: "u"}},
		},
		{
			name: "face and emoji labels",
			msg:  domain.Message{{Type: domain.SegmentFace, RefID: "14"}, {Type: domain.SegmentFace}, {Type: domain.SegmentEmoji}},
			want: []RenderSegment{{Type: domain.SegmentText, Content: "[表情:14] [表情:0] [emoji]"}},
		},
		{
			name: "mentions resolve card then nickname then id",
			msg: domain.Message{
				{Type: domain.SegmentAt, Target: "10"},
				{Type: domain.SegmentAt, Target: "11"},
				{Type: domain.SegmentAt, Target: "12"},
				{Type: domain.SegmentAt, Target: "all"},
			},
			want: []RenderSegment{{Type: domain.SegmentText, Content: "@Carded @OnlyNick @12 @all "}},
		},
		{
			name: "unknown types are bracketed and images split text runs",
			msg: domain.Message{
				text("a"),
				{Type: domain.SegmentImage, URL: "u"},
				{Type: "record"},
				{Type: domain.SegmentReply, RefID: "1"},
				text(" b"),
			},
			want: []RenderSegment{
				{Type: domain.SegmentText, Content: "a"},
				{Type: domain.SegmentImage, Content: "u"},
				{Type: domain.SegmentText, Content: "[record] b"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.snapper.extractSegments(context.Background(), 1, tt.msg))
		})
	}
}

func TestMessageSnapper_ResolveFaceAssets(t *testing.T) {
	srv := newAssetServer(t, http.StatusOK, pngBytes, false)
	f := newSnapperFixture(t)
	f.cfg.Update(func(c *config.Config) {
		c.Render.ResolveFaceAssets = true
		c.Asset.URLTemplate = srv.URL + "/s{id}.png"
	})
	f.snapper.assets = NewAssetCache(f.logger, f.cfg, nil)

	segs := f.snapper.extractSegments(context.Background(), 1, domain.Message{{Type: domain.SegmentFace, RefID: "14"}})
	require.Len(t, segs, 1)
	assert.Equal(t, domain.SegmentImage, segs[0].Type)
	assert.Contains(t, segs[0].Content, "14.png")

	srv.status = http.StatusNotFound
	segs = f.snapper.extractSegments(context.Background(), 1, domain.Message{{Type: domain.SegmentFace, RefID: "15"}})
	assert.Equal(t, []RenderSegment{{Type: domain.SegmentText, Content: "[表情:15]"}}, segs)
}
