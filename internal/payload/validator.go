package payload

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/pb33f/libopenapi"
	validator "github.com/pb33f/libopenapi-validator"
	validatorErrors "github.com/pb33f/libopenapi-validator/errors"
)

// RequestValidator checks generated requests against the configured
// document before they are handed to the caller.
type RequestValidator struct {
	validator validator.Validator
}

func NewRequestValidator(spec []byte) (*RequestValidator, error) {
	doc, err := libopenapi.NewDocument(spec)
	if err != nil {
		return nil, err
	}

	v, errs := validator.NewValidator(doc)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	return &RequestValidator{validator: v}, nil
}

// Validate returns nil or a *RequestError describing every failed rule.
func (v *RequestValidator) Validate(r *http.Request) error {
	valid, errs := v.validator.ValidateHttpRequestSync(r)
	if valid {
		return nil
	}
	return &RequestError{
		Message: fmt.Sprintf("generated %s %s does not conform to the document", r.Method, r.URL.Path),
		Errors:  errs,
	}
}

// RequestError wraps libopenapi-validator errors for one request.
type RequestError struct {
	Message string
	Errors  []*validatorErrors.ValidationError
}

func (e *RequestError) Error() string {
	if len(e.Errors) == 0 {
		return e.Message
	}
	return e.Message + ": " + strings.Join(e.Details(), "; ")
}

// Details renders each validation error with its reason when present.
func (e *RequestError) Details() []string {
	out := make([]string, 0, len(e.Errors))
	for _, ve := range e.Errors {
		msg := ve.Message
		if ve.Reason != "" {
			msg += " (" + ve.Reason + ")"
		}
		out = append(out, msg)
	}
	return out
}
