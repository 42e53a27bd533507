package server

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var digitsRe = regexp.MustCompile(`^\d+$`)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// 错误路径使用 json 字段名
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("digits", func(fl validator.FieldLevel) bool {
		return digitsRe.MatchString(fl.Field().String())
	})
	return v
}

// 覆盖默认提示，key 为 "字段.tag"
var issueMessages = map[string]string{
	"mc_number.required":    "MC number is required",
	"mc_number.digits":      "MC number must contain only digits",
	"load_id.required":      "Load ID is required",
	"listed_rate.required":  "Listed rate is required",
	"listed_rate.gt":        "Listed rate must be positive",
	"counter_rate.required": "Counter rate is required",
	"counter_rate.gt":       "Counter rate must be positive",
	"round.required":        "Round is required",
}

// validateStruct 运行 struct tag 校验，返回按字段整理的问题列表
func (s *Server) validateStruct(v any) []fieldIssue {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []fieldIssue{{Path: "", Message: err.Error()}}
	}
	out := make([]fieldIssue, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, fieldIssue{Path: fe.Field(), Message: issueMessage(fe)})
	}
	return out
}

func issueMessage(fe validator.FieldError) string {
	if msg, ok := issueMessages[fe.Field()+"."+fe.Tag()]; ok {
		return msg
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("Invalid enum value. Expected %s", strings.Join(strings.Fields(fe.Param()), " | "))
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
	case "gte", "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "lte", "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}
