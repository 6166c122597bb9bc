package payload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/cuecode/cuecode/internal/model"
	"github.com/cuecode/cuecode/internal/toolcall"
)

// Request is the HTTP request a payload describes.
type Request struct {
	Method string      `json:"method"`
	URL    string      `json:"url"`
	Header http.Header `json:"header,omitempty"`
	Body   string      `json:"body,omitempty"`
}

// HTTPRequest builds a standard library request for validation or sending.
func (r *Request) HTTPRequest(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	if r.Body != "" {
		body = strings.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return req, nil
}

// BuildRequest maps tool-call arguments back onto op. Argument keys follow
// the <name>_in_<location> convention of the synthesized descriptor, and
// requestBody carries the body, optionally wrapped in its media type.
func BuildRequest(serverURL string, op *model.Operation, args map[string]any) (*Request, error) {
	path := op.Path
	query := url.Values{}
	header := http.Header{}
	var cookies []string

	names := toolcall.PropertyNames(op.Parameters)
	for i, p := range op.Parameters {
		v, ok := args[names[i]]
		if !ok || v == nil {
			continue
		}
		switch p.In {
		case model.LocationPath:
			path = strings.ReplaceAll(path, "{"+p.Name+"}", url.PathEscape(formatValue(v)))
		case model.LocationQuery:
			if items, ok := v.([]any); ok {
				for _, item := range items {
					query.Add(p.Name, formatValue(item))
				}
				continue
			}
			query.Add(p.Name, formatValue(v))
		case model.LocationHeader:
			header.Set(p.Name, formatValue(v))
		case model.LocationCookie:
			cookies = append(cookies, (&http.Cookie{Name: p.Name, Value: formatValue(v)}).String())
		}
	}
	if len(cookies) > 0 {
		header.Set("Cookie", strings.Join(cookies, "; "))
	}

	u := strings.TrimSuffix(serverURL, "/") + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req := &Request{Method: string(op.Method), URL: u, Header: header}

	if op.RequestBody != nil {
		if raw, ok := args["requestBody"]; ok && raw != nil {
			mediaType, body := unwrapBody(op.RequestBody, raw)
			encoded, err := encodeBody(mediaType, body)
			if err != nil {
				return nil, fmt.Errorf("encoding %s body: %w", mediaType, err)
			}
			req.Body = encoded
			header.Set("Content-Type", mediaType)
		}
	}

	if len(header) == 0 {
		req.Header = nil
	}
	return req, nil
}

// unwrapBody picks the media type for a body argument. Models answer the
// oneOf-by-media-type schema either with {"<media type>": body} or with the
// body alone.
func unwrapBody(rb *model.RequestBody, raw any) (string, any) {
	fallback := "application/json"
	if len(rb.Content) > 0 {
		fallback = rb.Content[0].MediaType
	}
	obj, ok := raw.(map[string]any)
	if !ok || len(obj) != 1 {
		return fallback, raw
	}
	for _, mt := range rb.Content {
		if v, ok := obj[mt.MediaType]; ok {
			return mt.MediaType, v
		}
	}
	return fallback, raw
}

func encodeBody(mediaType string, body any) (string, error) {
	switch {
	case mediaType == "application/x-www-form-urlencoded":
		obj, ok := body.(map[string]any)
		if !ok {
			return "", fmt.Errorf("form body must be an object, got %T", body)
		}
		form := url.Values{}
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			form.Set(k, formatValue(obj[k]))
		}
		return form.Encode(), nil
	case strings.HasPrefix(mediaType, "text/"):
		if s, ok := body.(string); ok {
			return s, nil
		}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(body); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func formatValue(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
}
