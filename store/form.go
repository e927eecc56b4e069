package store

import (
	"context"

	"github.com/tbxark/insuragent/types"
)

const formKeyPrefix = "filled_form:"

// FormStore persists finalized questionnaire results keyed by the
// originating conversation id. Records are written once and never updated.
type FormStore struct {
	cache Cache[types.FilledForm]
}

func NewFormStore(cache Cache[types.FilledForm]) *FormStore {
	return &FormStore{cache: cache}
}

func (s *FormStore) Get(ctx context.Context, conversationID string) (types.FilledForm, bool, error) {
	return s.cache.Get(ctx, formKeyPrefix+conversationID)
}

func (s *FormStore) Put(ctx context.Context, form types.FilledForm) error {
	return s.cache.Set(ctx, formKeyPrefix+form.ConversationID, form)
}

func (s *FormStore) Exists(ctx context.Context, conversationID string) (bool, error) {
	return s.cache.Exists(ctx, formKeyPrefix+conversationID)
}
