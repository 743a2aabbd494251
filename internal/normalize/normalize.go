package normalize

import (
	"fmt"
	"html"
	"net/url"
	"strings"
)

type Transform string

const (
	TransformURLDecode     Transform = "url_decode"
	TransformLowercase     Transform = "lowercase"
	TransformHTMLEntity    Transform = "html_entity"
	TransformPathNormalize Transform = "normalize_path"
)

const defaultDecodeDepth = 2

type Options struct {
	MaxDecodeDepth int
	URLDecode      bool
	Lowercase      bool
	HTMLEntity     bool
	NormalizePath  bool
}

func ParseTransform(name string) (Transform, error) {
	t := Transform(strings.ToLower(strings.TrimSpace(name)))
	switch t {
	case TransformURLDecode, TransformLowercase, TransformHTMLEntity, TransformPathNormalize:
		return t, nil
	default:
		return "", fmt.Errorf("unknown transform %q", name)
	}
}

// OptionsFor turns a rule's transform list into options. Unknown names are
// rejected at config validation, so they are ignored here.
func OptionsFor(transforms []Transform) Options {
	opts := Options{MaxDecodeDepth: defaultDecodeDepth}
	for _, t := range transforms {
		switch t {
		case TransformURLDecode:
			opts.URLDecode = true
		case TransformLowercase:
			opts.Lowercase = true
		case TransformHTMLEntity:
			opts.HTMLEntity = true
		case TransformPathNormalize:
			opts.NormalizePath = true
		}
	}
	return opts
}

// Enabled reports whether Apply would change anything.
func (o Options) Enabled() bool {
	return o.URLDecode || o.Lowercase || o.HTMLEntity || o.NormalizePath
}

// Apply runs the enabled transforms over a field value. Bytes are never
// dropped for being invalid text; a failed decode leaves the input as is.
func Apply(input []byte, opts Options) []byte {
	if !opts.Enabled() {
		return input
	}
	out := string(input)

	if opts.URLDecode {
		depth := opts.MaxDecodeDepth
		if depth <= 0 {
			depth = defaultDecodeDepth
		}
		for i := 0; i < depth; i++ {
			next, ok := decodeOnce(out)
			if !ok || next == out {
				break
			}
			out = next
		}
	}

	if opts.NormalizePath {
		out = NormalizePath(out)
	}
	if opts.HTMLEntity {
		out = html.UnescapeString(out)
	}
	if opts.Lowercase {
		out = lowerASCII(out)
	}

	return []byte(out)
}

func decodeOnce(input string) (string, bool) {
	decoded, err := url.PathUnescape(input)
	if err != nil {
		return input, false
	}
	return decoded, true
}

// lowerASCII folds A-Z only, leaving every other byte untouched so
// non-UTF-8 input keeps its length and offsets.
func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}
