package models

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Query identifies one aggregation run: a drug (or compound) name plus
// free-form context such as therapeutic area or client session info.
// It is immutable once built; NewQuery normalizes everything up front so
// the same logical query always produces the same cache key.
type Query struct {
	Subject string            `json:"subject"`
	Context map[string]string `json:"context,omitempty"`
}

// NewQuery builds a normalized Query. The subject is trimmed and
// case-folded; context keys and values are trimmed.
func NewQuery(subject string, context map[string]string) Query {
	q := Query{Subject: NormalizeSubject(subject)}
	if len(context) > 0 {
		q.Context = make(map[string]string, len(context))
		for k, v := range context {
			q.Context[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
	return q
}

// NormalizeSubject trims and lowercases a subject string.
func NormalizeSubject(subject string) string {
	return strings.ToLower(strings.TrimSpace(subject))
}

// CacheKey returns a stable key for this query: the normalized subject
// plus a digest of the sorted context pairs. Two queries that differ only
// in context ordering share a key.
func (q Query) CacheKey() string {
	if len(q.Context) == 0 {
		return q.Subject
	}
	keys := make([]string, 0, len(q.Context))
	for k := range q.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(q.Context[k]))
		h.Write([]byte{0})
	}
	return q.Subject + ":" + hex.EncodeToString(h.Sum(nil))[:16]
}

// IsValid reports whether the query has a usable subject.
func (q Query) IsValid() bool {
	return q.Subject != ""
}
