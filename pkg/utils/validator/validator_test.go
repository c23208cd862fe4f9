package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type queryRequest struct {
	Question string `json:"question" validate:"required,notblank"`
	Route    string `json:"route" validate:"omitempty,routename"`
	TopK     int    `json:"top_k" validate:"omitempty,min=1,max=50"`
}

func TestValidateOK(t *testing.T) {
	v := New()
	assert.Nil(t, v.Validate(&queryRequest{Question: "What is our travel policy?"}))
	assert.Nil(t, v.Validate(&queryRequest{Question: "q", Route: "SQL", TopK: 5}))
	assert.Nil(t, v.Validate(&queryRequest{Question: "q", Route: "retrieval"}))
}

func TestValidateFailures(t *testing.T) {
	tests := []struct {
		name  string
		req   queryRequest
		field string
		tag   string
		msg   string
	}{
		{"missing", queryRequest{}, "question", "required", "question is a required field"},
		{"blank", queryRequest{Question: "   "}, "question", "notblank", "question must not be blank"},
		{"bad route", queryRequest{Question: "q", Route: "graph"}, "route", "routename", "route must be one of structured, retrieval, web"},
		{"top_k", queryRequest{Question: "q", TopK: 99}, "top_k", "max", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := New().Validate(&tt.req)
			require.True(t, errs.HasErrors())
			assert.Equal(t, tt.field, errs.Errors[0].Field)
			assert.Equal(t, tt.tag, errs.Errors[0].Tag)
			if tt.msg != "" {
				assert.Equal(t, tt.msg, errs.First())
			}
			assert.Contains(t, errs.Error(), "validation failed: ")
		})
	}
}

func TestValidateChinese(t *testing.T) {
	errs := New().ValidateWithLang(&queryRequest{Question: " "}, LangZH)
	require.True(t, errs.HasErrors())
	assert.Equal(t, "question不能为空白", errs.First())
}

func TestNilErrors(t *testing.T) {
	var errs *ValidationErrors
	assert.False(t, errs.HasErrors())
	assert.Empty(t, errs.First())
	assert.Empty(t, errs.Error())
}
