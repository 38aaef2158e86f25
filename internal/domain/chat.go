package domain

import "context"

// ChatClient is the upstream chat-platform API consumed by the snapshot service.
// Any error is treated as a transient upstream failure by callers.
type ChatClient interface {
	GetGroupInfo(ctx context.Context, groupID int64) (Record, error)
	GetGroupMemberInfo(ctx context.Context, groupID, userID int64) (Record, error)
	GetMessage(ctx context.Context, messageID int64) (*FetchedMessage, error)
}
