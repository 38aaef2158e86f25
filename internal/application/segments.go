package application

import (
	"context"
	"strconv"
	"strings"
	"time"
	"unicode"

	"gitlab.com/timkado/api/message-snapper/internal/domain"
)

const (
	imagePlaceholder = "[图片]"
	unknownTime      = "未知时间"
	timeLayout       = "2006-01-02 15:04"
)

// RenderSegment is a flattened, template-ready piece of a message: either a text run
// or an image reference.
type RenderSegment struct {
	Type    domain.SegmentType `json:"type"`
	Content string             `json:"content"`
}

// extractSegments flattens msg into text and image runs. Reply segments are dropped, so a
// quoted message's own quote never appears. Mentions are resolved through the member cache.
func (s *MessageSnapper) extractSegments(ctx context.Context, groupID int64, msg domain.Message) []RenderSegment {
	parts := make([]RenderSegment, 0, len(msg))
	for _, seg := range msg {
		switch seg.Type {
		case domain.SegmentText:
			if seg.Text != "" {
				parts = append(parts, textSegment(seg.Text))
			}
		case domain.SegmentImage:
			src := seg.URL
			if src == "" {
				src = seg.File
			}
			if src != "" {
				parts = append(parts, RenderSegment{Type: domain.SegmentImage, Content: src})
			} else {
				parts = append(parts, textSegment(imagePlaceholder))
			}
		case domain.SegmentFace:
			parts = append(parts, s.faceSegment(ctx, seg.RefID))
		case domain.SegmentEmoji:
			if seg.Text != "" {
				parts = append(parts, textSegment(seg.Text))
			} else {
				parts = append(parts, textSegment("[emoji]"))
			}
		case domain.SegmentAt:
			parts = append(parts, textSegment("@"+s.mentionName(ctx, groupID, seg.Target)+" "))
		case domain.SegmentReply:
			continue
		default:
			parts = append(parts, textSegment("["+string(seg.Type)+"]"))
		}
	}
	return mergeText(parts)
}

func textSegment(s string) RenderSegment {
	return RenderSegment{Type: domain.SegmentText, Content: s}
}

// faceSegment renders a face as a bracketed label. With asset resolution enabled, a face
// whose image can be cached is rendered as that image instead.
func (s *MessageSnapper) faceSegment(ctx context.Context, rawID string) RenderSegment {
	if rawID == "" {
		rawID = "0"
	}
	if s.configProvider.Get().Render.ResolveFaceAssets && s.assets != nil {
		if id, err := strconv.ParseInt(rawID, 10, 64); err == nil {
			if uri, ok := s.assets.URI(ctx, id); ok {
				return RenderSegment{Type: domain.SegmentImage, Content: uri}
			}
		}
	}
	return textSegment("[表情:" + rawID + "]")
}

// mentionName resolves a numeric target to card, nickname or the id itself.
// Non-numeric targets such as "all" are returned as-is.
func (s *MessageSnapper) mentionName(ctx context.Context, groupID int64, target string) string {
	userID, err := strconv.ParseInt(strings.TrimSpace(target), 10, 64)
	if err != nil {
		return target
	}
	member := s.GetMemberInfo(ctx, groupID, userID)
	if name := member.FirstNonEmpty("card", "nickname"); name != "" {
		return name
	}
	return strconv.FormatInt(userID, 10)
}

// mergeText joins adjacent text runs, collapsing the whitespace at each seam to one space.
func mergeText(parts []RenderSegment) []RenderSegment {
	merged := make([]RenderSegment, 0, len(parts))
	for _, p := range parts {
		if n := len(merged); n > 0 && p.Type == domain.SegmentText && merged[n-1].Type == domain.SegmentText {
			merged[n-1].Content = strings.TrimRightFunc(merged[n-1].Content, unicode.IsSpace) + " " + strings.TrimLeftFunc(p.Content, unicode.IsSpace)
			continue
		}
		merged = append(merged, p)
	}
	return merged
}

// textContent is the plain-text rendition of segs with images replaced by a placeholder.
func textContent(segs []RenderSegment) string {
	var b strings.Builder
	for _, seg := range segs {
		if seg.Type == domain.SegmentImage {
			b.WriteString(imagePlaceholder)
			continue
		}
		b.WriteString(seg.Content)
	}
	return strings.TrimSpace(b.String())
}

func isSingleImage(segs []RenderSegment) bool {
	return len(segs) == 1 && segs[0].Type == domain.SegmentImage && segs[0].Content != ""
}

func formatTime(unix int64, loc *time.Location) string {
	if unix <= 0 {
		return unknownTime
	}
	return time.Unix(unix, 0).In(loc).Format(timeLayout)
}
