package agent

import "context"

type conversationIDContext struct{}

// WithConversationID 把会话 id 放进 context，供 adk 适配层路由。
func WithConversationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, conversationIDContext{}, id)
}

// ConversationIDFromContext gets the conversation id from the context.
func ConversationIDFromContext(ctx context.Context) (string, bool) {
	value := ctx.Value(conversationIDContext{})
	if value == nil {
		return "", false
	}
	id, ok := value.(string)
	return id, ok
}
