// Package codetable implements the table-driven code lookups shared by the
// segment assemblers: assay-to-code mappings from the jurisdiction test lists,
// race/ethnicity mappings from the master file, and the result-coding table.
package codetable

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoMatch is returned when no table row matches and the caller supplied
// neither a default value nor a descriptive error.
var ErrNoMatch = errors.New("no matching row and no default value specified")

// Row is one entry of a code table as loaded from a configuration document.
type Row map[string]any

// Op selects how the key field of a row is compared against the search value.
type Op int

const (
	// OpEquals matches when the row's key field equals the search value.
	OpEquals Op = iota
	// OpContains matches when the row's list-valued key field contains the
	// search value.
	OpContains
)

// Clean normalizes a value for comparison: trimmed and case-folded.
func Clean(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func squash(s string) string {
	return strings.ReplaceAll(Clean(s), " ", "")
}

type lookupOptions struct {
	defaultValue any
	hasDefault   bool
	err          error
}

// Option customizes the no-match behavior of Lookup.
type Option func(*lookupOptions)

// WithDefault makes Lookup return v when no row matches.
func WithDefault(v any) Option {
	return func(o *lookupOptions) { o.defaultValue = v; o.hasDefault = true }
}

// WithError makes Lookup return err when no row matches. It takes priority
// over WithDefault.
func WithError(err error) Option {
	return func(o *lookupOptions) { o.err = err }
}

// Lookup scans rows for the first one whose keyField matches search under op
// and returns that row's returnKey value. Comparison is normalized on both
// sides (trimmed, case-folded, spaces removed). A matched row that carries no
// value under returnKey resolves the same way as no match. When nothing
// resolves the caller's error wins over the caller's default, which wins over
// ErrNoMatch.
func Lookup(rows []Row, keyField, search, returnKey string, op Op, opts ...Option) (any, error) {
	var o lookupOptions
	for _, opt := range opts {
		opt(&o)
	}

	want := squash(search)
	for _, row := range rows {
		key, ok := row[keyField]
		if !ok {
			continue
		}
		if !matches(key, want, op) {
			continue
		}
		if v, ok := row[returnKey]; ok {
			return v, nil
		}
		// first match wins even when it has nothing to return
		break
	}

	if o.err != nil {
		return nil, o.err
	}
	if o.hasDefault {
		return o.defaultValue, nil
	}
	return nil, ErrNoMatch
}

func matches(key any, want string, op Op) bool {
	switch op {
	case OpEquals:
		s, ok := key.(string)
		return ok && squash(s) == want
	case OpContains:
		list, ok := key.([]any)
		if !ok {
			return false
		}
		for _, item := range list {
			if s, ok := item.(string); ok && squash(s) == want {
				return true
			}
		}
	}
	return false
}

// LookupString is Lookup for tables whose return values are strings.
func LookupString(rows []Row, keyField, search, returnKey string, op Op, opts ...Option) (string, error) {
	v, err := Lookup(rows, keyField, search, returnKey, op, opts...)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("table value for %q is %T, not a string", returnKey, v)
	}
	return s, nil
}
