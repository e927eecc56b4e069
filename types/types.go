package types

// Role 标记会话中一条消息的来源。
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn 是会话中的一条消息，插入顺序即对话顺序。
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Status 描述一次问卷会话的生命周期阶段。
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Conversation 是一次问卷会话的完整记录。Turns 只允许追加，
// 首条必须是 system 指令；Completed 之后不再接受新的消息。
type Conversation struct {
	ID     string `json:"conversation_id"`
	Turns  []Turn `json:"conversation"`
	Status Status `json:"status"`
}

// InsuranceType 是问卷允许的保险类型枚举。
type InsuranceType string

const (
	InsuranceAuto       InsuranceType = "Auto"
	InsuranceHome       InsuranceType = "Home"
	InsuranceCondo      InsuranceType = "Condo"
	InsuranceTenant     InsuranceType = "Tenant"
	InsuranceFarm       InsuranceType = "Farm"
	InsuranceCommercial InsuranceType = "Commercial"
	InsuranceLife       InsuranceType = "Life"
)

// AllInsuranceTypes lists the allowed values in canonical capitalization.
var AllInsuranceTypes = []InsuranceType{
	InsuranceAuto,
	InsuranceHome,
	InsuranceCondo,
	InsuranceTenant,
	InsuranceFarm,
	InsuranceCommercial,
	InsuranceLife,
}

// CreateTimeLayout is the storage format of FilledForm.CreateTime (UTC).
const CreateTimeLayout = "2006-01-02 15:04:05"

// FilledForm 是校验通过后落库的问卷结果，一经写入不再修改。
type FilledForm struct {
	ConversationID  string        `json:"conversation_id"`
	FirstName       string        `json:"first_name"`
	LastName        string        `json:"last_name"`
	TypeOfInsurance InsuranceType `json:"type_of_insurance"`
	PhoneNumber     int64         `json:"phone_number"`
	Age             int           `json:"age"`
	CreateTime      string        `json:"create_time"`
}
