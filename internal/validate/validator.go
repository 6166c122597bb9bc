// Package validate checks a loaded document against the structural rules the
// rest of the pipeline relies on. It reports every violation it finds rather
// than stopping at the first.
package validate

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/cuecode/cuecode/internal/apperrors"
	"github.com/cuecode/cuecode/internal/loader"
	"github.com/cuecode/cuecode/internal/model"
	"github.com/pb33f/libopenapi"
	validator "github.com/pb33f/libopenapi-validator"
	"go.uber.org/zap"
)

type Validator struct {
	openAPISchema bool
	logger        *zap.Logger
}

type Option func(*Validator)

// WithOpenAPISchema toggles the baseline check of the document against the
// official OpenAPI JSON schema.
func WithOpenAPISchema(enabled bool) Option {
	return func(v *Validator) {
		v.openAPISchema = enabled
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(v *Validator) {
		v.logger = logger
	}
}

func New(opts ...Option) *Validator {
	v := &Validator{openAPISchema: true, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate returns nil or an *apperrors.ValidationError holding all violations.
func (v *Validator) Validate(result *loader.Result) error {
	var violations []*apperrors.Violation

	if v.openAPISchema {
		violations = append(violations, v.baseline(result.RawData)...)
	}

	doc := result.Document
	violations = append(violations, checkServers(doc)...)
	violations = append(violations, checkOperations(doc)...)

	if len(violations) == 0 {
		return nil
	}
	v.logger.Debug("Document failed validation", zap.Int("violations", len(violations)))
	return &apperrors.ValidationError{Violations: violations}
}

func (v *Validator) baseline(raw []byte) []*apperrors.Violation {
	doc, err := libopenapi.NewDocument(raw)
	if err != nil {
		return []*apperrors.Violation{{
			Kind:    apperrors.KindOpenAPISchema,
			Message: fmt.Sprintf("parsing OpenAPI document: %v", err),
		}}
	}

	val, errs := validator.NewValidator(doc)
	if len(errs) > 0 {
		out := make([]*apperrors.Violation, 0, len(errs))
		for _, e := range errs {
			out = append(out, &apperrors.Violation{Kind: apperrors.KindOpenAPISchema, Message: e.Error()})
		}
		return out
	}

	valid, verrs := val.ValidateDocument()
	if valid {
		return nil
	}
	out := make([]*apperrors.Violation, 0, len(verrs))
	for _, e := range verrs {
		msg := e.Message
		if e.Reason != "" {
			msg += ": " + e.Reason
		}
		path := ""
		if e.SpecLine > 0 {
			path = fmt.Sprintf("line %d", e.SpecLine)
		}
		out = append(out, &apperrors.Violation{Kind: apperrors.KindOpenAPISchema, Path: path, Message: msg})
	}
	return out
}

// checkServers enforces the single-server topology: no level may declare
// more than one server, and every operation must end up on the same one.
func checkServers(doc *model.Document) []*apperrors.Violation {
	var out []*apperrors.Violation

	declared := func(path string, servers []model.Server) {
		if len(servers) > 1 {
			out = append(out, &apperrors.Violation{
				Kind:    apperrors.KindServerCount,
				Path:    path,
				Message: fmt.Sprintf("%d servers declared, exactly one supported", len(servers)),
				Count:   len(servers),
			})
		}
	}

	declared("servers", doc.Servers)
	effective := make(map[string]bool)
	for i := range doc.Paths {
		p := &doc.Paths[i]
		declared("paths."+p.Path+".servers", p.Servers)
		for j := range p.Operations {
			op := &p.Operations[j]
			declared("paths."+p.Path+"."+op.Method.Lower()+".servers", op.Servers)
			for _, s := range doc.EffectiveServers(p, op) {
				effective[s.URL] = true
			}
		}
	}
	if len(effective) == 0 {
		for _, s := range doc.EffectiveServers(nil, nil) {
			effective[s.URL] = true
		}
	}

	urls := make([]string, 0, len(effective))
	for u := range effective {
		urls = append(urls, u)
	}
	sort.Strings(urls)

	if len(urls) > 1 {
		out = append(out, &apperrors.Violation{
			Kind:    apperrors.KindServerCount,
			Message: fmt.Sprintf("%d distinct effective servers (%s), exactly one supported", len(urls), strings.Join(urls, ", ")),
			Count:   len(urls),
		})
	}

	for _, raw := range urls {
		if msg := checkServerURL(raw); msg != "" {
			out = append(out, &apperrors.Violation{
				Kind:    apperrors.KindServerURL,
				Path:    raw,
				Message: msg,
			})
		}
	}

	return out
}

func checkServerURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Sprintf("invalid url: %v", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "server url must be absolute with scheme and host"
	}
	return ""
}

func checkOperations(doc *model.Document) []*apperrors.Violation {
	var out []*apperrors.Violation

	for i := range doc.Paths {
		p := &doc.Paths[i]
		seen := make(map[model.Method]bool)
		inherited := make(map[string]bool)

		for _, param := range p.Parameters {
			inherited[param.Name+"|"+string(param.In)] = true
			if !param.In.Valid() {
				out = append(out, locationViolation("paths."+p.Path, param))
			}
		}

		for j := range p.Operations {
			op := &p.Operations[j]
			opPath := "paths." + p.Path + "." + op.Method.Lower()

			if !op.Method.Valid() {
				out = append(out, &apperrors.Violation{
					Kind:    apperrors.KindUnsupportedVerb,
					Path:    opPath,
					Message: fmt.Sprintf("unsupported HTTP verb %s", op.Method),
				})
				continue
			}
			if seen[op.Method] {
				out = append(out, &apperrors.Violation{
					Kind:    apperrors.KindDuplicateOperation,
					Path:    opPath,
					Message: fmt.Sprintf("%s %s declared more than once", op.Method, p.Path),
				})
				continue
			}
			seen[op.Method] = true

			for _, param := range op.Parameters {
				if !param.In.Valid() && !inherited[param.Name+"|"+string(param.In)] {
					out = append(out, locationViolation(opPath, param))
				}
			}
		}
	}

	return out
}

func locationViolation(path string, p model.Parameter) *apperrors.Violation {
	return &apperrors.Violation{
		Kind:    apperrors.KindParameterLocation,
		Path:    path + ".parameters." + p.Name,
		Message: fmt.Sprintf("invalid parameter location %q", p.In),
	}
}
