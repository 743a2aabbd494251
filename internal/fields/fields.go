// Package fields turns an HTTP request into the named values rules inspect.
package fields

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

type Target string

const (
	TargetArgs           Target = "ARGS"
	TargetArgsNames      Target = "ARGS_NAMES"
	TargetQuery          Target = "QUERY"
	TargetRequestLine    Target = "REQUEST_LINE"
	TargetRequestURI     Target = "REQUEST_URI"
	TargetRequestHeaders Target = "REQUEST_HEADERS"
	TargetRequestBody    Target = "REQUEST_BODY"
)

const redacted = "<redacted>"

// Field is one named value. Value is raw bytes and may hold anything the
// client sent, including NUL and invalid UTF-8.
type Field struct {
	Name      string
	Value     []byte
	Sensitive bool
}

func ParseTarget(name string) (Target, error) {
	t := Target(strings.ToUpper(strings.TrimSpace(name)))
	switch t {
	case TargetArgs, TargetArgsNames, TargetQuery, TargetRequestLine,
		TargetRequestURI, TargetRequestHeaders, TargetRequestBody:
		return t, nil
	default:
		return "", fmt.Errorf("unknown target %q", name)
	}
}

// NeedsBody reports whether extracting t reads the request body.
func (t Target) NeedsBody() bool {
	return t == TargetArgs || t == TargetArgsNames || t == TargetRequestBody
}

// ParseArgs splits an urlencoded string into fields, keeping the order the
// client sent them in. A name or value that fails to decode is kept raw.
func ParseArgs(raw string) []Field {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, "&")
	out := make([]Field, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		name, value, _ := strings.Cut(part, "=")
		out = append(out, Field{
			Name:  unescape(name),
			Value: []byte(unescape(value)),
		})
	}
	return out
}

func unescape(s string) string {
	decoded, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}

// Extract returns the fields a target selects from r. body is the already
// buffered request body; it may be nil when no rule needs it.
func Extract(r *http.Request, body []byte, target Target) []Field {
	if r == nil {
		return nil
	}
	switch target {
	case TargetArgs:
		return args(r, body)
	case TargetArgsNames:
		list := args(r, body)
		out := make([]Field, len(list))
		for i, f := range list {
			out[i] = Field{Name: f.Name, Value: []byte(f.Name)}
		}
		return out
	case TargetQuery:
		return []Field{{Name: "QUERY", Value: []byte(r.URL.RawQuery)}}
	case TargetRequestLine:
		line := r.Method + " " + r.URL.RequestURI() + " " + r.Proto
		return []Field{{Name: "REQUEST_LINE", Value: []byte(line)}}
	case TargetRequestURI:
		return []Field{{Name: "REQUEST_URI", Value: []byte(r.URL.RequestURI())}}
	case TargetRequestHeaders:
		return headers(r.Header)
	case TargetRequestBody:
		if len(body) == 0 {
			return nil
		}
		return []Field{{Name: "REQUEST_BODY", Value: body}}
	default:
		return nil
	}
}

func args(r *http.Request, body []byte) []Field {
	out := ParseArgs(r.URL.RawQuery)
	if len(body) == 0 {
		return out
	}
	switch mediaType(r.Header.Get("Content-Type")) {
	case "application/x-www-form-urlencoded":
		out = append(out, ParseArgs(string(body))...)
	case "application/json":
		out = append(out, jsonArgs(body)...)
	}
	return out
}

func mediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return mt
}

const maxJSONArgs = 50

// jsonArgs exposes the scalar members of a top-level JSON object as
// arguments, sorted by name. Nested values are left to REQUEST_BODY.
func jsonArgs(body []byte) []Field {
	var obj map[string]any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&obj); err != nil {
		return nil
	}

	keys := make([]string, 0, len(obj))
	for key := range obj {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	if len(keys) > maxJSONArgs {
		keys = keys[:maxJSONArgs]
	}

	out := make([]Field, 0, len(keys))
	for _, key := range keys {
		var value string
		switch v := obj[key].(type) {
		case string:
			value = v
		case json.Number:
			value = v.String()
		case bool:
			value = fmt.Sprint(v)
		default:
			continue
		}
		out = append(out, Field{Name: key, Value: []byte(value)})
	}
	return out
}

// headers yields one field per header value in name order. Credentials are
// replaced so they never reach a matcher or a log line.
func headers(h http.Header) []Field {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []Field
	for _, name := range names {
		canon := http.CanonicalHeaderKey(name)
		if IsSensitiveHeader(canon) {
			out = append(out, Field{Name: canon, Value: []byte(redacted), Sensitive: true})
			continue
		}
		for _, value := range h[name] {
			out = append(out, Field{Name: canon, Value: []byte(value)})
		}
	}
	return out
}

func IsSensitiveHeader(name string) bool {
	switch strings.ToLower(name) {
	case "authorization", "proxy-authorization", "cookie", "set-cookie":
		return true
	default:
		return false
	}
}
