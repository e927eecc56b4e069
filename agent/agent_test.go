package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/cloudwego/eino/adk"
	"github.com/cloudwego/eino/schema"

	"github.com/tbxark/insuragent/extract"
)

func runAgentOnce(t *testing.T, ctx context.Context, a *Agent, text string) *adk.AgentEvent {
	t.Helper()
	iter := a.Run(ctx, &adk.AgentInput{Messages: []adk.Message{schema.UserMessage(text)}})
	event, ok := iter.Next()
	if !ok {
		t.Fatal("agent produced no events")
	}
	return event
}

func TestAgentRunFollowUp(t *testing.T) {
	t.Parallel()
	stub := &stubExtractor{results: []*extract.Result{followUp("What is your phone number?")}}
	flow, _ := newTestFlow(stub)
	a := NewAgent("InsuranceFiller", "fills insurance questionnaires via conversation", flow)

	ctx := context.Background()
	id, err := flow.StartConversation(ctx)
	if err != nil {
		t.Fatalf("StartConversation failed: %v", err)
	}

	event := runAgentOnce(t, WithConversationID(ctx, id), a, "Hi, I'm Bob Smith")
	if event.Err != nil {
		t.Fatalf("agent event error: %v", event.Err)
	}
	msg, err := event.Output.MessageOutput.GetMessage()
	if err != nil {
		t.Fatalf("GetMessage failed: %v", err)
	}
	if msg.Content != "What is your phone number?" {
		t.Errorf("content = %q", msg.Content)
	}
}

func TestAgentRunCompletion(t *testing.T) {
	t.Parallel()
	stub := &stubExtractor{results: []*extract.Result{completed(bobFields)}}
	flow, _ := newTestFlow(stub)
	a := NewAgent("InsuranceFiller", "fills insurance questionnaires via conversation", flow)

	ctx := context.Background()
	id, err := flow.StartConversation(ctx)
	if err != nil {
		t.Fatalf("StartConversation failed: %v", err)
	}

	event := runAgentOnce(t, WithConversationID(ctx, id), a, "Hi, I'm Bob Smith, Auto insurance, 9876543210, I'm 24")
	if event.Err != nil {
		t.Fatalf("agent event error: %v", event.Err)
	}
	msg, err := event.Output.MessageOutput.GetMessage()
	if err != nil {
		t.Fatalf("GetMessage failed: %v", err)
	}
	if !strings.Contains(msg.Content, `"first_name":"Bob"`) {
		t.Errorf("completion message missing form payload: %q", msg.Content)
	}
}

func TestAgentRunWithoutConversationID(t *testing.T) {
	t.Parallel()
	flow, _ := newTestFlow(&stubExtractor{})
	a := NewAgent("InsuranceFiller", "fills insurance questionnaires via conversation", flow)

	event := runAgentOnce(t, context.Background(), a, "hello")
	if event.Err == nil {
		t.Fatal("expected an error event without a conversation id")
	}
}
