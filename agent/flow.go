// Package agent owns the conversation lifecycle: it creates conversations,
// feeds each user turn through extraction, and finalizes the validated form.
package agent

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tbxark/insuragent/extract"
	"github.com/tbxark/insuragent/store"
	"github.com/tbxark/insuragent/types"
	"github.com/tbxark/insuragent/validate"
)

// TurnResult is what one submitted turn produced: a follow-up question while
// the questionnaire is still open, or the finalized form once it is complete.
type TurnResult struct {
	Finished     bool              `json:"is_finished"`
	NextQuestion string            `json:"next_question,omitempty"`
	Form         *types.FilledForm `json:"filled_form,omitempty"`
}

// Flow 驱动整个问卷会话状态机。所有跨调用状态都在两个 store 里，
// Flow 本身除按会话分片的锁之外不持有可变状态。
type Flow struct {
	conversations *store.ConversationStore
	forms         *store.FormStore
	extractor     extract.Extractor
	systemPrompt  string
	locks         conversationLocks
}

// NewFlow 创建会话编排器。systemPrompt 作为每个新会话的种子指令，
// 由调用方显式传入，而不是进程级全局变量。
func NewFlow(conversations *store.ConversationStore, forms *store.FormStore, extractor extract.Extractor, systemPrompt string) *Flow {
	return &Flow{
		conversations: conversations,
		forms:         forms,
		extractor:     extractor,
		systemPrompt:  systemPrompt,
	}
}

// StartConversation creates a fresh conversation seeded with the system
// instruction turn and returns its id.
func (f *Flow) StartConversation(ctx context.Context) (string, error) {
	id, err := newConversationID()
	if err != nil {
		return "", fmt.Errorf("generate conversation id: %w", err)
	}
	conv := types.Conversation{
		ID:     id,
		Status: types.StatusInProgress,
		Turns: []types.Turn{
			{Role: types.RoleSystem, Content: f.systemPrompt},
		},
	}
	if err := f.conversations.Put(ctx, conv); err != nil {
		return "", fmt.Errorf("persist conversation: %w", err)
	}
	slog.Info("conversation started", "conversation_id", id)
	return id, nil
}

// SubmitTurn appends the user's message, runs extraction over the full
// history, and either records the assistant's next question or finalizes the
// form. Nothing is persisted unless the whole turn succeeds, so a failed
// call can be retried with the same message.
func (f *Flow) SubmitTurn(ctx context.Context, conversationID, userText string) (*TurnResult, error) {
	unlock := f.locks.lock(conversationID)
	defer unlock()

	conv, ok, err := f.conversations.Get(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load conversation %s: %w", conversationID, err)
	}
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
	}
	if conv.Status == types.StatusCompleted {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, ErrConflict)
	}

	// 先在内存里拼好追加后的完整历史，提取失败时不落任何半截状态。
	updated := make([]types.Turn, 0, len(conv.Turns)+2)
	updated = append(updated, conv.Turns...)
	updated = append(updated, types.Turn{Role: types.RoleUser, Content: userText})

	result, err := f.extractor.Extract(ctx, updated)
	if err != nil {
		slog.Error("extraction failed", "conversation_id", conversationID, "err", err)
		return nil, err
	}

	if !result.Finished {
		conv.Turns = append(updated, types.Turn{Role: types.RoleAssistant, Content: result.NextQuestion})
		if err := f.conversations.Put(ctx, conv); err != nil {
			return nil, fmt.Errorf("persist conversation %s: %w", conversationID, err)
		}
		slog.Debug("follow-up question recorded", "conversation_id", conversationID, "turns", len(conv.Turns))
		return &TurnResult{Finished: false, NextQuestion: result.NextQuestion}, nil
	}

	form, err := validate.Form(result.Fields)
	if err != nil {
		// 校验失败只上抛，不写表单，会话保持进行中，等待用户修正。
		slog.Warn("extracted fields failed validation", "conversation_id", conversationID, "err", err)
		return nil, err
	}
	form.ConversationID = conversationID
	form.CreateTime = time.Now().UTC().Format(types.CreateTimeLayout)

	exists, err := f.forms.Exists(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("check form %s: %w", conversationID, err)
	}
	if exists {
		return nil, fmt.Errorf("form for conversation %s: %w", conversationID, ErrConflict)
	}
	if err := f.forms.Put(ctx, *form); err != nil {
		return nil, fmt.Errorf("persist form %s: %w", conversationID, err)
	}

	conv.Turns = updated
	conv.Status = types.StatusCompleted
	if err := f.conversations.Put(ctx, conv); err != nil {
		return nil, fmt.Errorf("persist conversation %s: %w", conversationID, err)
	}
	slog.Info("questionnaire completed", "conversation_id", conversationID)
	return &TurnResult{Finished: true, Form: form}, nil
}

// GetFilledForm returns the finalized form of a completed conversation.
func (f *Flow) GetFilledForm(ctx context.Context, conversationID string) (*types.FilledForm, error) {
	form, ok, err := f.forms.Get(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load form %s: %w", conversationID, err)
	}
	if !ok {
		return nil, fmt.Errorf("form for conversation %s: %w", conversationID, ErrNotFound)
	}
	return &form, nil
}

const (
	idAlphabet = "abcdefghijklmnopqrstuvwxyz"
	idLength   = 10
)

// newConversationID returns 10 random lowercase letters, enough randomness
// to treat collisions as impossible in practice.
func newConversationID() (string, error) {
	buf := make([]byte, idLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = idAlphabet[int(b)%len(idAlphabet)]
	}
	return string(buf), nil
}

// conversationLocks serializes submissions per conversation id so the
// append-extract-append sequence never races with itself.
type conversationLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *conversationLocks) lock(id string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = map[string]*sync.Mutex{}
	}
	lock, ok := l.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[id] = lock
	}
	l.mu.Unlock()
	lock.Lock()
	return lock.Unlock
}
