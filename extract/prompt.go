package extract

import (
	"encoding/json"
	"fmt"

	"github.com/eino-contrib/jsonschema"
)

// DefaultSystemPrompt is the seed instruction of every conversation. It fixes
// the five questions, the JSON keys of the final answer set, the allowed
// insurance types, and the phone/age normalization rules the validators
// enforce — the wording is part of the extraction contract, not documentation.
const DefaultSystemPrompt = `You are a polite and smart AI assistant that helps people fill a questionnaire to apply for an insurance.
Behave formal and with respect to the user.
We need to fill all next questions:
1) What is your first name?
2) What is your last name?
3) What is the type of insurance you need?
4) What is your phone number?
5) What is your age?

We expect final response in json with keys: "first_name", "last_name", "age", "type_of_insurance", "phone_number".

Allowed types of insurance are: "Auto", "Home", "Condo", "Tenant", "Farm", "Commercial", "Life".

Make sure that the phone number either has 10 digits or (11 digits and starts with +1).
Don't save +1 for the phone number, we need only next 10 digits. Store as int.
If the phone number is given in wrong format first time, then ask one more time with details.

Age should be int value with year granularity, don't accept a string.

Please ask one question at a time.`

// questionnaireAnswers mirrors the JSON shape the model must hand to
// save_users_questionnaire; it exists to reflect a schema into the prompt.
type questionnaireAnswers struct {
	FirstName       string `json:"first_name" jsonschema:"required,description=User's first name"`
	LastName        string `json:"last_name" jsonschema:"required,description=User's last name"`
	TypeOfInsurance string `json:"type_of_insurance" jsonschema:"required,enum=Auto,enum=Home,enum=Condo,enum=Tenant,enum=Farm,enum=Commercial,enum=Life"`
	PhoneNumber     int64  `json:"phone_number" jsonschema:"required,description=10 digit phone number stored as int"`
	Age             int    `json:"age" jsonschema:"required,minimum=0,description=Age in whole years"`
}

// BuildSystemPrompt 在默认指令后面附上答案集的 JSON Schema，
// 让模型对最终结构有一个机器可读的约束。
func BuildSystemPrompt() (string, error) {
	schema := jsonschema.Reflect(&questionnaireAnswers{})
	schema.Title = "Insurance questionnaire answers"
	schemaBytes, err := json.Marshal(schema)
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON schema: %w", err)
	}
	return fmt.Sprintf("%s\n\n# Final answer schema:\n```json\n%s\n```", DefaultSystemPrompt, string(schemaBytes)), nil
}
