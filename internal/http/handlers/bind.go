package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// BindJSON decodes and tag-validates the body into out. On failure it
// writes the 400 (or 413) itself and returns false; the message names the
// first offending field by its JSON name.
func BindJSON(ctx *gin.Context, out interface{}) bool {
	err := ctx.ShouldBindJSON(out)

	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError

	if errors.As(err, &tooLarge) {
		RespondError(ctx, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}

	RespondBadRequest(ctx, bindMessage(err, out))

	return false
}

// bindMessage turns a bind failure into one human-readable sentence.
func bindMessage(err error, out interface{}) string {
	rootType := baseStructType(out)

	var validatorErrors validator.ValidationErrors

	if errors.As(err, &validatorErrors) && len(validatorErrors) > 0 {
		first := validatorErrors[0]
		field := jsonFieldName(rootType, first.StructField())

		return field + " " + validationMessage(first.Tag(), first.Param())
	}

	var syntaxErr *json.SyntaxError

	if errors.As(err, &syntaxErr) {
		return "request body is not valid JSON"
	}

	var typeErr *json.UnmarshalTypeError

	if errors.As(err, &typeErr) {
		field := typeErr.Field

		if field == "" {
			field = "body"
		}

		return fmt.Sprintf("%s must be of type %s", field, typeErr.Type.String())
	}

	if errors.Is(err, io.EOF) {
		return "request body is required"
	}

	return "invalid request body"
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

// jsonFieldName maps a Go struct field back to the name clients sent.
func jsonFieldName(rootType reflect.Type, structField string) string {
	if rootType == nil {
		return strings.ToLower(structField)
	}

	sf, ok := rootType.FieldByName(structField)

	if !ok {
		return strings.ToLower(structField)
	}

	tag := sf.Tag.Get("json")

	if tag == "" {
		return strings.ToLower(structField)
	}

	name, _, _ := strings.Cut(tag, ",")

	if name == "" || name == "-" {
		return strings.ToLower(structField)
	}

	return name
}

func validationMessage(rule, param string) string {
	switch rule {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + param
	case "max":
		return "must be at most " + param
	case "gt":
		return "must be greater than " + param
	case "oneof":
		return "must be one of " + strings.ReplaceAll(param, " ", ", ")
	case "dive":
		return "has an invalid element"
	default:
		if param != "" {
			return fmt.Sprintf("failed %s validation (%s)", rule, param)
		}
		return "failed " + rule + " validation"
	}
}
