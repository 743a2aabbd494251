package normalize

import "strings"

// NormalizePath resolves "." and ".." segments and collapses repeated
// separators. Backslashes count as separators so that "..\" traversal is
// caught by the same patterns as "../". A path never climbs above its root.
func NormalizePath(path string) string {
	if path == "" {
		return "/"
	}
	path = strings.ReplaceAll(path, `\`, "/")

	rooted := path[0] == '/'
	trailing := len(path) > 1 && path[len(path)-1] == '/'

	segments := make([]string, 0, strings.Count(path, "/")+1)
	for _, seg := range strings.Split(path, "/") {
		switch seg {
		case "", ".":
		case "..":
			if n := len(segments); n > 0 {
				segments = segments[:n-1]
			}
		default:
			segments = append(segments, seg)
		}
	}

	out := strings.Join(segments, "/")
	if rooted {
		out = "/" + out
	}
	if out == "" {
		return "/"
	}
	if trailing && out != "/" {
		out += "/"
	}
	return out
}
