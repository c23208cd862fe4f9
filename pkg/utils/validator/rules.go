package validator

import (
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
)

// Custom validation tags
const (
	TagNotBlank  = "notblank"  // non-empty after trimming whitespace
	TagRouteName = "routename" // structured/sql, retrieval/rag or web, any case
)

var routeNames = map[string]struct{}{
	"structured": {}, "sql": {},
	"retrieval": {}, "rag": {},
	"web": {},
}

func (v *Validator) registerCustomRules() {
	_ = v.validate.RegisterValidation(TagNotBlank, validateNotBlank)
	_ = v.validate.RegisterValidation(TagRouteName, validateRouteName)

	messages := map[string]map[string]string{
		LangEN: {
			TagNotBlank:  "{0} must not be blank",
			TagRouteName: "{0} must be one of structured, retrieval, web",
		},
		LangZH: {
			TagNotBlank:  "{0}不能为空白",
			TagRouteName: "{0}必须是 structured、retrieval 或 web",
		},
	}
	for lang, m := range messages {
		trans := v.trans[lang]
		for tag, msg := range m {
			registerTranslation(v.validate, trans, tag, msg)
		}
	}
}

func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

func validateRouteName(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true // Let 'required' handle empty values
	}
	_, ok := routeNames[strings.ToLower(value)]
	return ok
}

func registerTranslation(v *validator.Validate, trans ut.Translator, tag, message string) {
	_ = v.RegisterTranslation(tag, trans,
		func(ut ut.Translator) error {
			return ut.Add(tag, message, true)
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			t, _ := ut.T(tag, fe.Field())
			return t
		},
	)
}
