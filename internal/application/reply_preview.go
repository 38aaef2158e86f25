package application

import (
	"context"
	"strconv"

	"gitlab.com/timkado/api/message-snapper/internal/domain"
)

// ReplyPreview is the quoted message shown above the snapshot body.
type ReplyPreview struct {
	SenderName string          `json:"sender_name"`
	Time       string          `json:"time"`
	Segments   []RenderSegment `json:"segments"`
	Content    string          `json:"content"`
}

// replyPreview builds a preview from the first reply segment of msg. Lookup failures and
// unparsable ids yield no preview.
func (s *MessageSnapper) replyPreview(ctx context.Context, groupID int64, msg domain.Message) *ReplyPreview {
	for _, seg := range msg {
		if seg.Type != domain.SegmentReply {
			continue
		}
		messageID, err := strconv.ParseInt(seg.RefID, 10, 64)
		if err != nil {
			s.logger.Debug(ctx, "Reply segment without a usable message id", "ref_id", seg.RefID)
			return nil
		}
		quoted, err := s.chat.GetMessage(ctx, messageID)
		if err != nil {
			s.logger.Warn(ctx, "Failed to fetch quoted message", "message_id", messageID, "error", err.Error())
			return nil
		}

		segments := s.extractSegments(ctx, groupID, quoted.Message)
		content := textContent(segments)
		if content == "" {
			content = "[消息]"
		}
		return &ReplyPreview{
			SenderName: quotedSenderName(quoted.Sender),
			Time:       formatTime(quoted.Time, s.location),
			Segments:   segments,
			Content:    content,
		}
	}
	return nil
}

func quotedSenderName(sender domain.Record) string {
	if name := sender.FirstNonEmpty("card", "nickname"); name != "" {
		return name
	}
	if id := sender.Int("user_id"); id != 0 {
		return strconv.FormatInt(id, 10)
	}
	return unknownName
}
