package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

var imageSizePattern = regexp.MustCompile(`^[0-9]{2,4}x[0-9]{2,4}$`)

// requestValidator returns the shared validator. Field names in messages
// are the JSON names.
func requestValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
		_ = validate.RegisterValidation("imagesize", func(fl validator.FieldLevel) bool {
			return imageSizePattern.MatchString(fl.Field().String())
		})
	})
	return validate
}

// badRequestError is a client error that maps to 400.
type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string { return e.msg }

// validateRequest validates v and converts the first failure into a
// readable message.
func validateRequest(v any) error {
	err := requestValidator().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fieldMessage(fe))
		}
		return &badRequestError{msg: strings.Join(msgs, "; ")}
	}
	return &badRequestError{msg: err.Error()}
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "gtfield":
		return fmt.Sprintf("%s must be after %s", field, fe.Param())
	case "imagesize":
		return fmt.Sprintf("%s must look like 512x512", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

// decodeJSON reads a JSON body into v and validates it. An empty body
// leaves v at its zero value.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return &badRequestError{msg: "request body too large or unreadable"}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return validateRequest(v)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &badRequestError{msg: "invalid request body"}
	}
	return validateRequest(v)
}
