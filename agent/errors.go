package agent

import "errors"

var (
	// ErrNotFound 表示 conversation_id 对应的记录不存在，
	// 或者会话尚未完成、还没有落库的表单。
	ErrNotFound = errors.New("agent: not found")

	// ErrConflict 表示会话已经完成：既不再接受新的消息，
	// 也不会为同一个会话写入第二份表单。
	ErrConflict = errors.New("agent: conversation already completed")
)
