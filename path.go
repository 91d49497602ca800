package agora

import "strings"

// NormalizePath turns a request path into the key used to pool Handlers. The
// prefix is stripped when the path starts with it on a segment boundary, a
// leading slash is enforced and a trailing slash is removed. The root always
// normalizes to "/".
func NormalizePath(prefix string, path string) string {
	prefix = normalizePrefix(prefix)

	path = strings.TrimSpace(path)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if prefix != "" {
		if path == prefix {
			path = "/"
		} else if strings.HasPrefix(path, prefix+"/") {
			path = path[len(prefix):]
		}
	}
	path = strings.TrimRight(path, "/")
	if path == "" {
		path = "/"
	}
	return path
}

// normalizePrefix returns prefix with a leading slash and without a trailing
// one. The default prefix "/" normalizes to the empty string.
func normalizePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return ""
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return strings.TrimRight(prefix, "/")
}
