// Package validate holds the pure field validation and normalization rules
// applied to extracted questionnaire answers before a form is persisted.
package validate

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tbxark/insuragent/types"
)

// JSON keys the model is instructed to use in its final answer set.
const (
	FieldFirstName       = "first_name"
	FieldLastName        = "last_name"
	FieldTypeOfInsurance = "type_of_insurance"
	FieldPhoneNumber     = "phone_number"
	FieldAge             = "age"
)

// FieldError 表示某个字段未通过校验。
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid field %q: %s", e.Field, e.Reason)
}

// InsuranceType accepts a case-insensitive match of one of the seven allowed
// insurance types and returns the canonical capitalization.
func InsuranceType(value any) (types.InsuranceType, error) {
	s, ok := asString(value)
	if !ok {
		return "", &FieldError{Field: FieldTypeOfInsurance, Reason: "must be text"}
	}
	s = strings.TrimSpace(s)
	for _, allowed := range types.AllInsuranceTypes {
		if strings.EqualFold(s, string(allowed)) {
			return allowed, nil
		}
	}
	return "", &FieldError{Field: FieldTypeOfInsurance, Reason: fmt.Sprintf("%q is not an allowed insurance type", s)}
}

// PhoneNumber accepts exactly 10 digits, or 11 digits starting with "1"
// (a stripped "+1" country code), and returns the trailing 10 digits as an
// integer. A literal "+1" prefix is stripped before the digit rules apply.
func PhoneNumber(value any) (int64, error) {
	s, hadCountryCode, err := phoneDigits(value)
	if err != nil {
		return 0, err
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, &FieldError{Field: FieldPhoneNumber, Reason: "must contain only digits"}
		}
	}
	switch {
	// 写了 "+1" 国家码的号码必须走 11 位规则，剩余国内号码仍需满 10 位。
	case len(s) == 10 && !hadCountryCode:
	case len(s) == 11 && s[0] == '1':
		s = s[1:]
	default:
		return 0, &FieldError{Field: FieldPhoneNumber, Reason: "must be 10 digits, or 11 digits starting with 1"}
	}
	n, perr := strconv.ParseInt(s, 10, 64)
	if perr != nil {
		return 0, &FieldError{Field: FieldPhoneNumber, Reason: "must be numeric"}
	}
	return n, nil
}

func phoneDigits(value any) (string, bool, error) {
	if n, ok := asInteger(value); ok {
		return strconv.FormatInt(n, 10), false, nil
	}
	s, ok := asString(value)
	if !ok {
		return "", false, &FieldError{Field: FieldPhoneNumber, Reason: "must be text or a number"}
	}
	s = strings.TrimSpace(s)
	// 带国家码的写法 "+1XXXXXXXXXX"：去掉 "+" 落到 11 位规则上，
	// 并标记国家码已出现，避免 "+1" 加 9 位号码凑成 10 位数字串蒙混过关。
	if strings.HasPrefix(s, "+1") {
		return s[1:], true, nil
	}
	return s, false, nil
}

// Age accepts a non-negative whole number of years.
func Age(value any) (int, error) {
	if n, ok := asInteger(value); ok {
		if n < 0 {
			return 0, &FieldError{Field: FieldAge, Reason: "must not be negative"}
		}
		return int(n), nil
	}
	if s, ok := asString(value); ok {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return 0, &FieldError{Field: FieldAge, Reason: "must be a whole number"}
		}
		if n < 0 {
			return 0, &FieldError{Field: FieldAge, Reason: "must not be negative"}
		}
		return n, nil
	}
	return 0, &FieldError{Field: FieldAge, Reason: "must be a whole number"}
}

// Name requires non-empty trimmed text; field names the offending JSON key.
func Name(field string, value any) (string, error) {
	s, ok := asString(value)
	if !ok {
		return "", &FieldError{Field: field, Reason: "must be text"}
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", &FieldError{Field: field, Reason: "must not be empty"}
	}
	return s, nil
}

// Form runs all field validators over the raw extracted answers and builds a
// FilledForm. The contract is all-or-nothing: any failing field aborts with a
// FieldError and no form is produced. ConversationID and CreateTime are left
// for the caller to stamp.
func Form(fields map[string]any) (*types.FilledForm, error) {
	firstName, err := Name(FieldFirstName, fields[FieldFirstName])
	if err != nil {
		return nil, err
	}
	lastName, err := Name(FieldLastName, fields[FieldLastName])
	if err != nil {
		return nil, err
	}
	insurance, err := InsuranceType(fields[FieldTypeOfInsurance])
	if err != nil {
		return nil, err
	}
	phone, err := PhoneNumber(fields[FieldPhoneNumber])
	if err != nil {
		return nil, err
	}
	age, err := Age(fields[FieldAge])
	if err != nil {
		return nil, err
	}
	return &types.FilledForm{
		FirstName:       firstName,
		LastName:        lastName,
		TypeOfInsurance: insurance,
		PhoneNumber:     phone,
		Age:             age,
	}, nil
}

func asString(value any) (string, bool) {
	s, ok := value.(string)
	return s, ok
}

// asInteger normalizes the numeric types a JSON decoder may hand us.
// Fractional values are not integers and are rejected.
func asInteger(value any) (int64, bool) {
	switch n := value.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		return 0, false
	default:
		return 0, false
	}
}
