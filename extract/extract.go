// Package extract turns a conversation history into either a follow-up
// question for the user or a completed set of questionnaire answers, by
// calling a tool-capable chat model.
package extract

import (
	"context"
	"errors"

	"github.com/tbxark/insuragent/types"
)

// ErrUnavailable 表示模型调用在重试耗尽后仍然失败。
// 调用方可以在不丢失会话状态的前提下重试同一条消息。
var ErrUnavailable = errors.New("extract: model unavailable")

// Result is the two-shape outcome of one extraction call: either a follow-up
// question (Finished=false) or the raw answer set (Finished=true). Fields are
// unvalidated key/value pairs exactly as the model produced them.
type Result struct {
	Finished     bool
	NextQuestion string
	Fields       map[string]any
}

// Extractor 对上层屏蔽具体的模型实现，便于在测试中注入确定性桩。
type Extractor interface {
	Extract(ctx context.Context, turns []types.Turn) (*Result, error)
}
