package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gitlab.com/timkado/api/message-snapper/internal/adapters/config"
	"gitlab.com/timkado/api/message-snapper/internal/adapters/metrics"
	"gitlab.com/timkado/api/message-snapper/internal/domain"
	"gitlab.com/timkado/api/message-snapper/pkg/contextkeys"
)

const unknownName = "unknown"

// fallbackGroup is returned when the group lookup fails. It is never cached.
func fallbackGroup() domain.Record {
	return domain.Record{"group_name": unknownName, "member_count": 0}
}

// MessageSnapper assembles snapshot data from the metadata caches and the chat platform
// and hands it to the renderer.
type MessageSnapper struct {
	logger         domain.Logger
	configProvider config.Provider
	cache          *CacheManager
	assets         *AssetCache
	chat           domain.ChatClient
	renderer       domain.Renderer
	location       *time.Location
}

// NewMessageSnapper wires the assembly service. Message times are formatted in app.timezone,
// falling back to the process local zone.
func NewMessageSnapper(
	logger domain.Logger,
	configProvider config.Provider,
	cache *CacheManager,
	assets *AssetCache,
	chat domain.ChatClient,
	renderer domain.Renderer,
) *MessageSnapper {
	loc := time.Local
	if tz := configProvider.Get().App.Timezone; tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		} else {
			logger.Warn(context.Background(), "Unknown timezone, using local time", "timezone", tz, "error", err.Error())
		}
	}
	return &MessageSnapper{
		logger:         logger,
		configProvider: configProvider,
		cache:          cache,
		assets:         assets,
		chat:           chat,
		renderer:       renderer,
		location:       loc,
	}
}

// LoadCache warms the metadata caches from the persisted snapshot.
func (s *MessageSnapper) LoadCache(ctx context.Context) {
	s.cache.Load(ctx)
}

// SaveCache persists the metadata caches. Failures are logged only.
func (s *MessageSnapper) SaveCache(ctx context.Context) {
	s.cache.Save(ctx)
}

// CacheStats reports the current metadata cache sizes.
func (s *MessageSnapper) CacheStats() CacheStats {
	return s.cache.Stats()
}

// GetGroupInfo returns group metadata, cache first. Platform failures yield a fallback
// record and are not cached.
func (s *MessageSnapper) GetGroupInfo(ctx context.Context, groupID int64) domain.Record {
	if rec, ok := s.cache.GetGroup(groupID); ok {
		return rec
	}
	rec, err := s.chat.GetGroupInfo(ctx, groupID)
	if err != nil {
		s.logger.Warn(ctx, "Group info lookup failed, using fallback", "group_id", groupID, "error", err.Error())
		return fallbackGroup()
	}
	s.cache.SetGroup(groupID, rec)
	return rec
}

// GetMemberInfo returns member metadata, cache first. Platform failures yield an empty record.
func (s *MessageSnapper) GetMemberInfo(ctx context.Context, groupID, userID int64) domain.Record {
	if rec, ok := s.cache.GetMember(groupID, userID); ok {
		return rec
	}
	rec, err := s.chat.GetGroupMemberInfo(ctx, groupID, userID)
	if err != nil {
		s.logger.Warn(ctx, "Member info lookup failed", "group_id", groupID, "member_id", userID, "error", err.Error())
		return domain.Record{}
	}
	s.cache.SetMember(groupID, userID, rec)
	return rec
}

// AssetURI resolves a sticker/emoji id to a local file URI.
func (s *MessageSnapper) AssetURI(ctx context.Context, id int64) (string, bool) {
	return s.assets.URI(ctx, id)
}

// AssetPath is where AssetURI stores the file for id.
func (s *MessageSnapper) AssetPath(id int64) string {
	return s.assets.Path(id)
}

// GenerateSnapshot renders req into image bytes. It fails with ErrUnsupportedMessage when
// nothing in the message can be rendered and with ErrRenderFailed when the renderer fails.
// Metadata and quoted-message lookup failures degrade to fallbacks.
func (s *MessageSnapper) GenerateSnapshot(ctx context.Context, req domain.SnapshotRequest) ([]byte, error) {
	ctx = context.WithValue(ctx, contextkeys.GroupIDKey, req.GroupID)
	ctx = context.WithValue(ctx, contextkeys.UserIDKey, req.UserID)

	preview := s.replyPreview(ctx, req.GroupID, req.Message)
	segments := s.extractSegments(ctx, req.GroupID, req.Message)
	if len(segments) == 0 && preview == nil {
		metrics.ObserveSnapshot(metrics.ResultUnsupported)
		return nil, ErrUnsupportedMessage
	}

	cfg := s.configProvider.Get().Render

	group := s.GetGroupInfo(ctx, req.GroupID)
	groupName := group.String("group_name")
	if groupName == "" {
		groupName = unknownName
	}

	var senderName, level, title, role string
	if member := s.GetMemberInfo(ctx, req.GroupID, req.UserID); len(member) > 0 {
		senderName = member.FirstNonEmpty("card", "nickname")
		level = member.String("level")
		title = member.String("title")
		role = member.String("role")
	} else {
		senderName = req.Sender.Name
		level = req.Sender.Level
		title = req.Sender.Title
		role = req.Sender.Role
	}
	if senderName == "" {
		senderName = unknownName
	}

	data := map[string]any{
		"font_family":       cfg.FontFamily,
		"group_name":        groupName,
		"member_count":      group.Int("member_count"),
		"avatar_url":        strings.ReplaceAll(cfg.AvatarURLTemplate, "{user_id}", fmt.Sprint(req.UserID)),
		"sender_name":       senderName,
		"sender_id":         req.UserID,
		"level":             level,
		"title":             title,
		"role":              role,
		"reply_preview":     preview,
		"message_segments":  segments,
		"single_image_only": isSingleImage(segments),
		"message_content":   textContent(segments),
		"time":              formatTime(req.Time, s.location),
	}

	start := time.Now()
	img, err := s.renderer.Render(ctx, cfg.Template, data)
	metrics.ObserveRender(time.Since(start))
	if err != nil {
		metrics.ObserveSnapshot(metrics.ResultError)
		s.logger.Error(ctx, "Snapshot rendering failed", "template", cfg.Template, "error", err.Error())
		return nil, fmt.Errorf("%w: %v", ErrRenderFailed, err)
	}

	metrics.ObserveSnapshot(metrics.ResultSuccess)
	s.logger.Info(ctx, "成功生成消息快照", "sender_name", senderName, "sender_id", req.UserID, "bytes", len(img))
	return img, nil
}
