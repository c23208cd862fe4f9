package validator

import "strings"

// FieldError is one failed rule on one JSON field.
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message"`
}

// ValidationErrors lists every failed rule of a request, in field order.
type ValidationErrors struct {
	Errors []FieldError `json:"errors"`
}

func (v *ValidationErrors) messages() []string {
	if v == nil {
		return nil
	}
	out := make([]string, len(v.Errors))
	for i, fe := range v.Errors {
		out[i] = fe.Message
	}
	return out
}

func (v *ValidationErrors) Error() string {
	if !v.HasErrors() {
		return ""
	}
	return "validation failed: " + strings.Join(v.messages(), "; ")
}

func (v *ValidationErrors) HasErrors() bool {
	return v != nil && len(v.Errors) > 0
}

// First returns the message shown in the envelope.
func (v *ValidationErrors) First() string {
	if !v.HasErrors() {
		return ""
	}
	return v.Errors[0].Message
}
