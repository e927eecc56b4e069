package agent

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/adk"
	"github.com/cloudwego/eino/schema"
)

var _ adk.Agent = (*Agent)(nil)

// Agent 把 Flow 适配成 eino adk Agent，方便嵌入到多 Agent 编排里。
// 会话 id 通过 context 路由（见 WithConversationID）。
type Agent struct {
	name        string
	description string
	flow        *Flow
}

func NewAgent(name, description string, flow *Flow) *Agent {
	return &Agent{
		name:        name,
		description: description,
		flow:        flow,
	}
}

func (a *Agent) Name(ctx context.Context) string {
	return a.name
}

func (a *Agent) Description(ctx context.Context) string {
	return a.description
}

func (a *Agent) Run(ctx context.Context, input *adk.AgentInput, options ...adk.AgentRunOption) *adk.AsyncIterator[*adk.AgentEvent] {
	iter, gen := adk.NewAsyncIteratorPair[*adk.AgentEvent]()
	go func() {
		defer func() {
			e := recover()
			if e != nil {
				gen.Send(&adk.AgentEvent{
					Err: fmt.Errorf("recover from panic: %v", e),
				})
			}
			gen.Close()
		}()
		if len(input.Messages) == 0 {
			gen.Send(&adk.AgentEvent{
				Err: fmt.Errorf("no messages in input"),
			})
			return
		}
		id, ok := ConversationIDFromContext(ctx)
		if !ok {
			gen.Send(&adk.AgentEvent{
				Err: fmt.Errorf("no conversation id in context"),
			})
			return
		}
		result, err := a.flow.SubmitTurn(ctx, id, input.Messages[len(input.Messages)-1].Content)
		if err != nil {
			gen.Send(&adk.AgentEvent{
				Err: fmt.Errorf("submit turn failed: %w", err),
			})
			return
		}
		content := result.NextQuestion
		if result.Finished {
			formJSON, mErr := sonic.MarshalString(result.Form)
			if mErr != nil {
				gen.Send(&adk.AgentEvent{
					Err: fmt.Errorf("marshal filled form failed: %w", mErr),
				})
				return
			}
			content = fmt.Sprintf("Your insurance application is complete. Recorded form:\n%s", formJSON)
		}
		gen.Send(&adk.AgentEvent{
			Output: &adk.AgentOutput{
				MessageOutput: &adk.MessageVariant{
					IsStreaming: false,
					Message: &schema.Message{
						Role:    schema.Assistant,
						Content: content,
					},
					Role: schema.Assistant,
				},
			},
		})
	}()
	return iter
}
