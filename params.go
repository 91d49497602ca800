package agora

import "strings"

// Params represents the parameters bound from the connection path by the
// route that created a Handler.
type Params map[string]string

// Get returns the value of a parameter by key. An exact match wins; otherwise
// the lookup falls back to a case-insensitive match. When several keys differ
// only by case, the lexically smallest one wins. Returns an empty string if
// the key doesn't exist.
func (p Params) Get(key string) string {
	return lookup(p, key)
}

func (p Params) clone() Params {
	c := make(Params, len(p))
	for k, v := range p {
		c[k] = v
	}
	return c
}

// QueryParams represents the query string of the connection that created a
// Handler, flattened to one value per key.
type QueryParams map[string]string

// Get returns the value of a query parameter by key, or an empty string if the
// key doesn't exist. Lookup rules match Params.Get.
func (q QueryParams) Get(key string) string {
	return lookup(q, key)
}

func (q QueryParams) clone() QueryParams {
	c := make(QueryParams, len(q))
	for k, v := range q {
		c[k] = v
	}
	return c
}

func lookup(m map[string]string, key string) string {
	if v, ok := m[key]; ok {
		return v
	}
	match, found := "", false
	for k := range m {
		if strings.EqualFold(k, key) && (!found || k < match) {
			match, found = k, true
		}
	}
	if !found {
		return ""
	}
	return m[match]
}
