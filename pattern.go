package agora

import (
	"errors"
	"strings"

	"github.com/grafana/regexp"
)

// Pattern represents a compiled route pattern used for matching connection
// paths. Patterns are made of literal segments ('/rooms/lobby') and named
// parameters ('/rooms/:id'). Empty segments are ignored, so '', '/' and '//'
// all describe the root. Use NewPattern to create patterns from strings.
type Pattern struct {
	str    string
	chunks []chunk
	keys   []string
	regExp *regexp.Regexp
}

// NewPattern creates a pattern from a string. Segments are separated by '/',
// and a segment starting with ':' binds its value to the name that follows.
// A leading slash is optional. Returns an error if a parameter has no name or
// if a name is used twice.
func NewPattern(patternStr string) (*Pattern, error) {
	chunks, err := parsePatternChunks(patternStr)
	if err != nil {
		return nil, err
	}

	patternRegExp, err := regExpFromChunks(chunks)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(chunks))
	for _, currentChunk := range chunks {
		if currentChunk.kind == dynamic {
			keys = append(keys, currentChunk.key)
		}
	}

	return &Pattern{
		str:    patternStr,
		chunks: chunks,
		keys:   keys,
		regExp: patternRegExp,
	}, nil
}

// MustNewPattern is like NewPattern but panics if the pattern is invalid.
func MustNewPattern(patternStr string) *Pattern {
	pattern, err := NewPattern(patternStr)
	if err != nil {
		panic("invalid route pattern \"" + patternStr + "\": " + err.Error())
	}
	return pattern
}

// Match compares a path to the pattern and returns the parameters bound from
// it. The path is split the same way as the pattern, so segment counts must be
// equal and every literal segment must match its counterpart exactly.
func (p *Pattern) Match(path string) (Params, bool) {
	matches := p.regExp.FindStringSubmatch(canonicalPath(splitSegments(path)))
	if len(matches) == 0 {
		return nil, false
	}

	params := make(Params, len(p.keys))
	for i, key := range p.keys {
		params[key] = matches[i+1]
	}

	return params, true
}

// Path creates a path string from the pattern by replacing parameter segments
// with the provided values. A missing parameter is an error.
func (p *Pattern) Path(params Params) (string, error) {
	segments := make([]string, 0, len(p.chunks))
	for _, currentChunk := range p.chunks {
		switch currentChunk.kind {
		case static:
			segments = append(segments, currentChunk.pattern)
		case dynamic:
			value, exists := params[currentChunk.key]
			if !exists {
				return "", errors.New("missing required parameter: " + currentChunk.key)
			}
			segments = append(segments, value)
		}
	}
	return canonicalPath(segments), nil
}

// Keys returns the parameter names of the pattern in positional order.
func (p *Pattern) Keys() []string {
	keys := make([]string, len(p.keys))
	copy(keys, p.keys)
	return keys
}

// String returns the string representation of the pattern.
func (p *Pattern) String() string {
	return p.str
}

type chunkKind int

const (
	static chunkKind = iota
	dynamic
)

type chunk = struct {
	kind    chunkKind
	key     string
	pattern string
}

func splitSegments(path string) []string {
	parts := strings.Split(strings.TrimSpace(path), "/")
	segments := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		segments = append(segments, part)
	}
	return segments
}

func canonicalPath(segments []string) string {
	return "/" + strings.Join(segments, "/")
}

func parsePatternChunks(patternStr string) ([]chunk, error) {
	segments := splitSegments(patternStr)
	chunks := make([]chunk, 0, len(segments))
	seenKeys := map[string]bool{}
	for _, segment := range segments {
		if strings.HasPrefix(segment, ":") {
			key := strings.TrimSpace(segment[1:])
			if key == "" {
				return nil, errors.New("dynamic chunks must have a name")
			}
			if seenKeys[key] {
				return nil, errors.New("duplicate parameter name: " + key)
			}
			seenKeys[key] = true
			chunks = append(chunks, chunk{kind: dynamic, key: key})
			continue
		}
		chunks = append(chunks, chunk{kind: static, pattern: segment})
	}
	return chunks, nil
}

// regExpFromChunks converts parsed pattern chunks to a regular expression
// matched against canonical paths.
func regExpFromChunks(chunks []chunk) (*regexp.Regexp, error) {
	if len(chunks) == 0 {
		return regexp.Compile("^\\/$")
	}

	regExpStr := "^"
	for _, currentChunk := range chunks {
		switch currentChunk.kind {
		case static:
			regExpStr += "\\/" + regexp.QuoteMeta(currentChunk.pattern)
		case dynamic:
			regExpStr += "\\/([^\\/]+)"
		}
	}
	regExpStr += "$"

	return regexp.Compile(regExpStr)
}
