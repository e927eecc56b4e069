package store

import (
	"context"

	"github.com/tbxark/insuragent/types"
)

const conversationKeyPrefix = "conversation:"

// ConversationStore persists conversation records keyed by conversation id.
// Put has full-overwrite semantics; the orchestrator owns the
// read-modify-write sequence for turn appends.
type ConversationStore struct {
	cache Cache[types.Conversation]
}

func NewConversationStore(cache Cache[types.Conversation]) *ConversationStore {
	return &ConversationStore{cache: cache}
}

func (s *ConversationStore) Get(ctx context.Context, id string) (types.Conversation, bool, error) {
	return s.cache.Get(ctx, conversationKeyPrefix+id)
}

func (s *ConversationStore) Put(ctx context.Context, conv types.Conversation) error {
	return s.cache.Set(ctx, conversationKeyPrefix+conv.ID, conv)
}

func (s *ConversationStore) Exists(ctx context.Context, id string) (bool, error) {
	return s.cache.Exists(ctx, conversationKeyPrefix+id)
}
