package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/tbxark/insuragent/extract"
	"github.com/tbxark/insuragent/store"
	"github.com/tbxark/insuragent/types"
	"github.com/tbxark/insuragent/validate"
)

// stubExtractor 按脚本依次返回预置结果，不依赖任何网络。
type stubExtractor struct {
	mu      sync.Mutex
	results []*extract.Result
	errs    []error
	calls   int
}

func (s *stubExtractor) Extract(ctx context.Context, turns []types.Turn) (*extract.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i < len(s.results) {
		return s.results[i], nil
	}
	return nil, errors.New("stub: script exhausted")
}

func followUp(question string) *extract.Result {
	return &extract.Result{Finished: false, NextQuestion: question}
}

func completed(fields map[string]any) *extract.Result {
	return &extract.Result{Finished: true, Fields: fields}
}

var bobFields = map[string]any{
	"first_name":        "Bob",
	"last_name":         "Smith",
	"type_of_insurance": "Auto",
	"phone_number":      float64(9876543210),
	"age":               float64(24),
}

func newTestFlow(stub *stubExtractor) (*Flow, *store.ConversationStore) {
	conversations := store.NewConversationStore(store.NewMemoryCache[types.Conversation]())
	forms := store.NewFormStore(store.NewMemoryCache[types.FilledForm]())
	return NewFlow(conversations, forms, stub, "questionnaire instructions"), conversations
}

func TestStartConversationSeedsSystemTurn(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	flow, conversations := newTestFlow(&stubExtractor{})

	id, err := flow.StartConversation(ctx)
	if err != nil {
		t.Fatalf("StartConversation failed: %v", err)
	}
	if len(id) != 10 {
		t.Errorf("conversation id %q has length %d", id, len(id))
	}

	conv, ok, err := conversations.Get(ctx, id)
	if err != nil || !ok {
		t.Fatalf("stored conversation missing: ok=%v err=%v", ok, err)
	}
	if conv.Status != types.StatusInProgress {
		t.Errorf("status = %q", conv.Status)
	}
	if len(conv.Turns) != 1 || conv.Turns[0].Role != types.RoleSystem {
		t.Fatalf("seed turns wrong: %+v", conv.Turns)
	}
	if conv.Turns[0].Content != "questionnaire instructions" {
		t.Errorf("seed content = %q", conv.Turns[0].Content)
	}

	// 两次创建必须得到不同的 id。
	id2, err := flow.StartConversation(ctx)
	if err != nil {
		t.Fatalf("second StartConversation failed: %v", err)
	}
	if id2 == id {
		t.Errorf("duplicate conversation id %q", id)
	}
}

func TestSubmitTurnUnknownConversation(t *testing.T) {
	t.Parallel()
	flow, _ := newTestFlow(&stubExtractor{})
	_, err := flow.SubmitTurn(context.Background(), "missing", "hi")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSubmitTurnFollowUpLoop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	stub := &stubExtractor{results: []*extract.Result{
		followUp("What is your phone number?"),
		followUp("And your age?"),
	}}
	flow, conversations := newTestFlow(stub)

	id, err := flow.StartConversation(ctx)
	if err != nil {
		t.Fatalf("StartConversation failed: %v", err)
	}

	result, err := flow.SubmitTurn(ctx, id, "Hi, I'm Bob Smith, I need Auto insurance.")
	if err != nil {
		t.Fatalf("SubmitTurn failed: %v", err)
	}
	if result.Finished {
		t.Fatal("expected Finished=false")
	}
	if result.NextQuestion != "What is your phone number?" {
		t.Errorf("NextQuestion = %q", result.NextQuestion)
	}

	// 第一轮之后：system + user + assistant 共 3 条。
	conv, _, _ := conversations.Get(ctx, id)
	if len(conv.Turns) != 3 {
		t.Fatalf("turn count = %d, want 3", len(conv.Turns))
	}
	if conv.Turns[1].Role != types.RoleUser || conv.Turns[2].Role != types.RoleAssistant {
		t.Fatalf("turn roles wrong: %+v", conv.Turns)
	}

	// 每个未完成轮次恰好增加两条，且旧消息不被改写。
	firstUser := conv.Turns[1].Content
	if _, err := flow.SubmitTurn(ctx, id, "My phone is 9876543210."); err != nil {
		t.Fatalf("second SubmitTurn failed: %v", err)
	}
	conv, _, _ = conversations.Get(ctx, id)
	if len(conv.Turns) != 5 {
		t.Fatalf("turn count = %d, want 5", len(conv.Turns))
	}
	if conv.Turns[1].Content != firstUser {
		t.Error("earlier turn was rewritten")
	}
	if conv.Status != types.StatusInProgress {
		t.Errorf("status = %q", conv.Status)
	}
}

func TestSubmitTurnCompletion(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	stub := &stubExtractor{results: []*extract.Result{completed(bobFields)}}
	flow, conversations := newTestFlow(stub)

	id, err := flow.StartConversation(ctx)
	if err != nil {
		t.Fatalf("StartConversation failed: %v", err)
	}

	result, err := flow.SubmitTurn(ctx, id, "Hi, I'm Bob Smith, I need Auto insurance, my phone is 9876543210, I'm 24.")
	if err != nil {
		t.Fatalf("SubmitTurn failed: %v", err)
	}
	if !result.Finished {
		t.Fatal("expected Finished=true")
	}
	form := result.Form
	if form.FirstName != "Bob" || form.LastName != "Smith" {
		t.Errorf("names wrong: %+v", form)
	}
	if form.TypeOfInsurance != types.InsuranceAuto {
		t.Errorf("TypeOfInsurance = %q", form.TypeOfInsurance)
	}
	if form.PhoneNumber != 9876543210 || form.Age != 24 {
		t.Errorf("phone/age wrong: %+v", form)
	}
	if form.ConversationID != id {
		t.Errorf("ConversationID = %q, want %q", form.ConversationID, id)
	}
	if form.CreateTime == "" {
		t.Error("CreateTime not stamped")
	}

	conv, _, _ := conversations.Get(ctx, id)
	if conv.Status != types.StatusCompleted {
		t.Errorf("status = %q", conv.Status)
	}
	// 完成的轮次只追加 user 消息，没有 assistant 追问。
	if len(conv.Turns) != 2 {
		t.Errorf("turn count = %d, want 2", len(conv.Turns))
	}

	// 读取是幂等的。
	got1, err := flow.GetFilledForm(ctx, id)
	if err != nil {
		t.Fatalf("GetFilledForm failed: %v", err)
	}
	got2, err := flow.GetFilledForm(ctx, id)
	if err != nil {
		t.Fatalf("second GetFilledForm failed: %v", err)
	}
	if *got1 != *got2 {
		t.Errorf("GetFilledForm not idempotent: %+v vs %+v", got1, got2)
	}
	if *got1 != *form {
		t.Errorf("stored form differs: %+v vs %+v", got1, form)
	}
}

func TestSubmitTurnAfterCompletionRejected(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	stub := &stubExtractor{results: []*extract.Result{completed(bobFields)}}
	flow, _ := newTestFlow(stub)

	id, _ := flow.StartConversation(ctx)
	if _, err := flow.SubmitTurn(ctx, id, "all my details at once"); err != nil {
		t.Fatalf("SubmitTurn failed: %v", err)
	}

	_, err := flow.SubmitTurn(ctx, id, "one more thing")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if stub.calls != 1 {
		t.Errorf("extractor called %d times, want 1", stub.calls)
	}
}

func TestSubmitTurnInvalidFieldLeavesStateUntouched(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	badFields := map[string]any{
		"first_name":        "Bob",
		"last_name":         "Smith",
		"type_of_insurance": "Auto",
		"phone_number":      "555-1234",
		"age":               float64(24),
	}
	stub := &stubExtractor{results: []*extract.Result{completed(badFields)}}
	flow, conversations := newTestFlow(stub)

	id, _ := flow.StartConversation(ctx)
	_, err := flow.SubmitTurn(ctx, id, "my phone is 555-1234")

	var fe *validate.FieldError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FieldError, got %v", err)
	}
	if fe.Field != "phone_number" {
		t.Errorf("error field = %q", fe.Field)
	}

	// 没有写表单，会话保持进行中，本轮也没有落任何消息。
	if _, err := flow.GetFilledForm(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound from GetFilledForm, got %v", err)
	}
	conv, _, _ := conversations.Get(ctx, id)
	if conv.Status != types.StatusInProgress {
		t.Errorf("status = %q", conv.Status)
	}
	if len(conv.Turns) != 1 {
		t.Errorf("turn count = %d, want 1", len(conv.Turns))
	}
}

func TestSubmitTurnExtractionUnavailable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	stub := &stubExtractor{errs: []error{
		fmt.Errorf("%w: network", extract.ErrUnavailable),
		nil,
	}, results: []*extract.Result{
		nil,
		followUp("What is your age?"),
	}}
	flow, conversations := newTestFlow(stub)

	id, _ := flow.StartConversation(ctx)
	_, err := flow.SubmitTurn(ctx, id, "I'm Bob")
	if !errors.Is(err, extract.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}

	// 失败的轮次不留下半截追加，客户端可以原样重发。
	conv, _, _ := conversations.Get(ctx, id)
	if len(conv.Turns) != 1 {
		t.Fatalf("turn count = %d after failed turn, want 1", len(conv.Turns))
	}

	result, err := flow.SubmitTurn(ctx, id, "I'm Bob")
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if result.NextQuestion != "What is your age?" {
		t.Errorf("NextQuestion = %q", result.NextQuestion)
	}
	conv, _, _ = conversations.Get(ctx, id)
	if len(conv.Turns) != 3 {
		t.Errorf("turn count = %d after retry, want 3", len(conv.Turns))
	}
}

func TestGetFilledFormUnknown(t *testing.T) {
	t.Parallel()
	flow, _ := newTestFlow(&stubExtractor{})
	if _, err := flow.GetFilledForm(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// 同一会话上的并发提交被串行化，消息序列不会因竞态丢失更新。
func TestConcurrentSubmitsAreSerialized(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	const workers = 8

	results := make([]*extract.Result, workers)
	for i := range results {
		results[i] = followUp(fmt.Sprintf("question %d", i))
	}
	stub := &stubExtractor{results: results}
	flow, conversations := newTestFlow(stub)

	id, _ := flow.StartConversation(ctx)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := flow.SubmitTurn(ctx, id, fmt.Sprintf("message %d", i)); err != nil {
				t.Errorf("SubmitTurn %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	conv, _, _ := conversations.Get(ctx, id)
	if want := 1 + workers*2; len(conv.Turns) != want {
		t.Fatalf("turn count = %d, want %d", len(conv.Turns), want)
	}
	if conv.Turns[0].Role != types.RoleSystem {
		t.Error("system seed turn lost")
	}
	for i := 1; i < len(conv.Turns); i++ {
		wantRole := types.RoleUser
		if i%2 == 0 {
			wantRole = types.RoleAssistant
		}
		if conv.Turns[i].Role != wantRole {
			t.Fatalf("turn %d role = %q, want %q", i, conv.Turns[i].Role, wantRole)
		}
	}
}
