package mocks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"gitlab.com/timkado/api/message-snapper/internal/domain"
)

// ErrMockUnavailable is returned for lookups that were not seeded.
var ErrMockUnavailable = errors.New("mock chat platform: record unavailable")

// MockChatClient implements domain.ChatClient over in-memory records.
type MockChatClient struct {
	mu       sync.RWMutex
	groups   map[int64]domain.Record
	members  map[string]domain.Record
	messages map[int64]*domain.FetchedMessage

	// Call counters
	GroupCalls   int64
	MemberCalls  int64
	MessageCalls int64
}

// NewMockChatClient creates an empty client; every lookup fails until seeded.
func NewMockChatClient() *MockChatClient {
	return &MockChatClient{
		groups:   make(map[int64]domain.Record),
		members:  make(map[string]domain.Record),
		messages: make(map[int64]*domain.FetchedMessage),
	}
}

func memberKey(groupID, userID int64) string {
	return fmt.Sprintf("%d:%d", groupID, userID)
}

// SetGroup seeds a group record.
func (m *MockChatClient) SetGroup(groupID int64, rec domain.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[groupID] = rec
}

// SetMember seeds a member record.
func (m *MockChatClient) SetMember(groupID, userID int64, rec domain.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[memberKey(groupID, userID)] = rec
}

// SetMessage seeds a message for reply lookups.
func (m *MockChatClient) SetMessage(msg *domain.FetchedMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[msg.MessageID] = msg
}

// GetGroupInfo implements domain.ChatClient
func (m *MockChatClient) GetGroupInfo(ctx context.Context, groupID int64) (domain.Record, error) {
	atomic.AddInt64(&m.GroupCalls, 1)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if rec, ok := m.groups[groupID]; ok {
		return rec, nil
	}
	return nil, ErrMockUnavailable
}

// GetGroupMemberInfo implements domain.ChatClient
func (m *MockChatClient) GetGroupMemberInfo(ctx context.Context, groupID, userID int64) (domain.Record, error) {
	atomic.AddInt64(&m.MemberCalls, 1)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if rec, ok := m.members[memberKey(groupID, userID)]; ok {
		return rec, nil
	}
	return nil, ErrMockUnavailable
}

// GetMessage implements domain.ChatClient
func (m *MockChatClient) GetMessage(ctx context.Context, messageID int64) (*domain.FetchedMessage, error) {
	atomic.AddInt64(&m.MessageCalls, 1)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if msg, ok := m.messages[messageID]; ok {
		return msg, nil
	}
	return nil, ErrMockUnavailable
}
