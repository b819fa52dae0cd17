package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/geocoder89/accounthub/internal/domain/user"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message"`
}

var registerOnce sync.Once

// RegisterValidators installs the personname and password tags on gin's
// validator. Safe to call more than once.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		if err := registerTags(v); err != nil {
			panic(fmt.Sprintf("register validators: %v", err))
		}
	})
}

func registerTags(v *validator.Validate) error {
	if err := v.RegisterValidation("personname", func(fl validator.FieldLevel) bool {
		return user.ValidName(fl.Field().String())
	}); err != nil {
		return fmt.Errorf("personname: %w", err)
	}
	if err := v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return user.ValidPassword(fl.Field().String())
	}); err != nil {
		return fmt.Errorf("password: %w", err)
	}
	return nil
}

// BindJSON decodes and validates the body, answering 400 (or 413 for an
// oversized body) itself when it returns false.
func BindJSON(ctx *gin.Context, out interface{}) bool {
	err := ctx.ShouldBindJSON(out)
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		RespondError(ctx, http.StatusRequestEntityTooLarge, "body_too_large", "Request body is too large.", nil)
		return false
	}

	RespondBadRequest(ctx, "validation_error", "Request validation failed.", parseBindError(err, out))
	return false
}

func parseBindError(err error, out interface{}) []FieldError {
	rootType := baseStructType(out)

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		fields := make([]FieldError, 0, len(validationErrs))
		for _, fe := range validationErrs {
			rule, param := fe.Tag(), fe.Param()
			fields = append(fields, FieldError{
				Field:   jsonPathFromValidatorError(rootType, fe),
				Rule:    rule,
				Param:   param,
				Message: validationMessage(rule, param),
			})
		}
		return fields
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return []FieldError{{Field: "body", Rule: "json", Message: "must be valid JSON"}}
	}

	if errors.Is(err, io.EOF) {
		return []FieldError{{Field: "body", Rule: "required", Message: "is required"}}
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := jsonPathFromDotPath(rootType, typeErr.Field)
		if field == "" {
			field = strings.TrimSpace(typeErr.Field)
		}
		return []FieldError{{
			Field:   field,
			Rule:    "type",
			Message: fmt.Sprintf("must be of type %s", typeErr.Type.String()),
		}}
	}

	return []FieldError{{Field: "body", Rule: "invalid", Message: "could not be decoded"}}
}

func baseStructType(v interface{}) reflect.Type {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t != nil && t.Kind() == reflect.Struct {
		return t
	}
	return nil
}

// validator namespaces look like "RegisterRequest.Email"; map each
// segment to its json tag.
func jsonPathFromValidatorError(rootType reflect.Type, fe validator.FieldError) string {
	ns := fe.StructNamespace()
	if ns == "" {
		return fe.Field()
	}

	parts := strings.Split(ns, ".")
	if rootType != nil && len(parts) > 0 && parts[0] == rootType.Name() {
		parts = parts[1:]
	}

	if path := mapStructPathToJSONPath(rootType, parts); path != "" {
		return path
	}
	return fe.Field()
}

func jsonPathFromDotPath(rootType reflect.Type, dotPath string) string {
	dotPath = strings.TrimSpace(dotPath)
	if dotPath == "" {
		return ""
	}
	return mapStructPathToJSONPath(rootType, strings.Split(dotPath, "."))
}

func mapStructPathToJSONPath(rootType reflect.Type, parts []string) string {
	current := rootType
	out := make([]string, 0, len(parts))

	for _, part := range parts {
		if part == "" {
			continue
		}

		name := part
		var next reflect.Type
		if current != nil {
			for current.Kind() == reflect.Pointer {
				current = current.Elem()
			}
			if current.Kind() == reflect.Struct {
				if sf, ok := current.FieldByName(part); ok {
					name = jsonName(sf)
					next = sf.Type
				}
			}
		}

		out = append(out, name)
		current = next
	}

	return strings.Join(out, ".")
}

func jsonName(sf reflect.StructField) string {
	name, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return sf.Name
	}
	return name
}

func validationMessage(rule, param string) string {
	switch rule {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "personname":
		return fmt.Sprintf("must be 1-%d characters of letters and spaces", user.NameMaxLen)
	case "password":
		return fmt.Sprintf("must be at least %d characters and at most %d bytes, with an uppercase letter, a lowercase letter and a digit",
			user.PasswordMinLen, user.PasswordMaxBytes)
	case "min":
		return "must be at least " + param
	case "max":
		return "must be at most " + param
	case "oneof":
		return "must be one of " + strings.ReplaceAll(param, " ", ", ")
	default:
		if param != "" {
			return fmt.Sprintf("failed %s validation (%s)", rule, param)
		}
		return "failed " + rule + " validation"
	}
}
