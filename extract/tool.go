package extract

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/tbxark/insuragent/types"
)

const (
	saveQuestionnaireToolName        = "save_users_questionnaire"
	saveQuestionnaireToolDescription = "If user responded all questions, store fully filled questionnaire to the database"

	askFollowUpToolName        = "ask_follow_up_question"
	askFollowUpToolDescription = "If the user didn't answer all the questions, generates an additional question to ask user"
)

type saveQuestionnaireArgs struct {
	UserAnswers map[string]any `json:"user_answers" jsonschema:"required,description=Fully filled questionnaire keyed by the expected JSON field names"`
}

type askFollowUpArgs struct {
	NextQuestion string `json:"next_question" jsonschema:"required,description=Next question which we will ask user to clarify their response"`
}

type extractorOptions struct {
	maxAttempts    int
	baseBackoff    time.Duration
	maxBackoff     time.Duration
	attemptTimeout time.Duration
}

type Option func(*extractorOptions)

// WithMaxAttempts sets how many model calls are made before giving up.
func WithMaxAttempts(n int) Option {
	return func(o *extractorOptions) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithBackoff sets the randomized exponential backoff bounds between attempts.
func WithBackoff(base, max time.Duration) Option {
	return func(o *extractorOptions) {
		if base > 0 {
			o.baseBackoff = base
		}
		if max > 0 {
			o.maxBackoff = max
		}
	}
}

// WithAttemptTimeout bounds a single model call.
func WithAttemptTimeout(d time.Duration) Option {
	return func(o *extractorOptions) {
		if d > 0 {
			o.attemptTimeout = d
		}
	}
}

// ToolBasedExtractor drives the extraction via tool calling: the model is
// given exactly two tools and each turn either records the completed
// questionnaire or asks the next follow-up question.
type ToolBasedExtractor struct {
	chatModel model.ToolCallingChatModel
	opts      extractorOptions
}

var _ Extractor = (*ToolBasedExtractor)(nil)

// NewToolBasedExtractor 创建基于工具调用的提取器。
func NewToolBasedExtractor(ctx context.Context, chatModel model.ToolCallingChatModel, opts ...Option) (*ToolBasedExtractor, error) {
	saveInfo, err := utils.GoStruct2ToolInfo[saveQuestionnaireArgs](saveQuestionnaireToolName, saveQuestionnaireToolDescription)
	if err != nil {
		return nil, fmt.Errorf("convert tool info failed: %w", err)
	}
	askInfo, err := utils.GoStruct2ToolInfo[askFollowUpArgs](askFollowUpToolName, askFollowUpToolDescription)
	if err != nil {
		return nil, fmt.Errorf("convert tool info failed: %w", err)
	}
	modelWithTools, err := chatModel.WithTools([]*schema.ToolInfo{saveInfo, askInfo})
	if err != nil {
		return nil, fmt.Errorf("bind tools failed: %w", err)
	}

	options := extractorOptions{
		maxAttempts:    3,
		baseBackoff:    time.Second,
		maxBackoff:     40 * time.Second,
		attemptTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return &ToolBasedExtractor{chatModel: modelWithTools, opts: options}, nil
}

func (e *ToolBasedExtractor) Extract(ctx context.Context, turns []types.Turn) (*Result, error) {
	messages := MessagesFromTurns(turns)

	var lastErr error
	for attempt := 0; attempt < e.opts.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := e.backoffDelay(attempt)
			slog.Debug("retrying extraction", "attempt", attempt+1, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			}
		}

		result, err := e.generateOnce(ctx, messages)
		if err == nil {
			return result, nil
		}
		lastErr = err
		slog.Error("extraction attempt failed", "attempt", attempt+1, "err", err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (e *ToolBasedExtractor) generateOnce(ctx context.Context, messages []*schema.Message) (*Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.opts.attemptTimeout)
	defer cancel()

	resp, err := e.chatModel.Generate(callCtx, messages)
	if err != nil {
		return nil, fmt.Errorf("LLM call failed: %w", err)
	}

	for _, tc := range resp.ToolCalls {
		switch tc.Function.Name {
		case saveQuestionnaireToolName:
			var args saveQuestionnaireArgs
			if err := sonic.UnmarshalString(tc.Function.Arguments, &args); err != nil {
				return nil, fmt.Errorf("parse %s arguments failed: %w", saveQuestionnaireToolName, err)
			}
			if len(args.UserAnswers) == 0 {
				return nil, fmt.Errorf("%s returned no answers", saveQuestionnaireToolName)
			}
			return &Result{Finished: true, Fields: args.UserAnswers}, nil
		case askFollowUpToolName:
			var args askFollowUpArgs
			if err := sonic.UnmarshalString(tc.Function.Arguments, &args); err != nil {
				return nil, fmt.Errorf("parse %s arguments failed: %w", askFollowUpToolName, err)
			}
			if args.NextQuestion == "" {
				return nil, fmt.Errorf("%s returned an empty question", askFollowUpToolName)
			}
			return &Result{Finished: false, NextQuestion: args.NextQuestion}, nil
		}
	}

	// 模型直接以文本回复时，当作追问处理。
	if resp.Content != "" {
		return &Result{Finished: false, NextQuestion: resp.Content}, nil
	}
	return nil, fmt.Errorf("model returned neither a known tool call nor content")
}

// backoffDelay picks a random delay below base*2^(attempt-1), capped at max.
func (e *ToolBasedExtractor) backoffDelay(attempt int) time.Duration {
	upper := e.opts.baseBackoff << (attempt - 1)
	if upper > e.opts.maxBackoff || upper <= 0 {
		upper = e.opts.maxBackoff
	}
	return time.Duration(rand.Int63n(int64(upper)) + 1)
}

// MessagesFromTurns converts stored turns into the model's message types.
func MessagesFromTurns(turns []types.Turn) []*schema.Message {
	messages := make([]*schema.Message, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case types.RoleSystem:
			messages = append(messages, schema.SystemMessage(turn.Content))
		case types.RoleAssistant:
			messages = append(messages, &schema.Message{Role: schema.Assistant, Content: turn.Content})
		default:
			messages = append(messages, schema.UserMessage(turn.Content))
		}
	}
	return messages
}
