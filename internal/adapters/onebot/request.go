package onebot

import (
	"errors"
	"fmt"

	"gitlab.com/timkado/api/message-snapper/internal/domain"
)

// ErrInvalidRequest marks a snapshot payload that cannot be turned into a request.
var ErrInvalidRequest = errors.New("invalid snapshot request")

// DecodeSnapshotRequest validates a wire payload and normalizes its message.
func DecodeSnapshotRequest(p domain.SnapshotRequestPayload) (domain.SnapshotRequest, error) {
	if p.GroupID <= 0 {
		return domain.SnapshotRequest{}, fmt.Errorf("%w: group_id must be positive", ErrInvalidRequest)
	}
	if p.UserID <= 0 {
		return domain.SnapshotRequest{}, fmt.Errorf("%w: user_id must be positive", ErrInvalidRequest)
	}
	msg, err := ParseMessage(p.Message)
	if err != nil {
		return domain.SnapshotRequest{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return domain.SnapshotRequest{
		GroupID: p.GroupID,
		UserID:  p.UserID,
		Message: msg,
		Time:    p.Time,
		Sender:  p.Sender,
	}, nil
}
