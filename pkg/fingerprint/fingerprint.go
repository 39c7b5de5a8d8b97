// Package fingerprint computes the deterministic content-addressed cache key
// for a generation request. The canonicalization rules and the choice of
// SHA-256 over a sorted, compact-separator JSON encoding are grounded on
// capibara's utils/fingerprinting.py (generate_fingerprint /
// _normalize_context in _examples/original_source).
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"github.com/scriptsmith/scriptsmith/pkg/model"
)

// Compute returns the 256-bit hex digest for the given semantic inputs.
// Determinism is the only correctness property: the same (prompt, language,
// context, policyName) always yields the same digest, and the inputs'
// values never perturb it — only their arity and type multiset do.
func Compute(prompt string, language model.Language, ctx *model.Context, policyName string) string {
	canon := canonicalize(prompt, language, ctx, policyName)
	sum := sha256.Sum256([]byte(canon))
	return hex.EncodeToString(sum[:])
}

// canonicalize builds the stable text representation that gets hashed:
// sorted object keys, compact separators, no whitespace — the Go analogue
// of json.dumps(..., sort_keys=True, separators=(',', ':')).
func canonicalize(prompt string, language model.Language, ctx *model.Context, policyName string) string {
	var b strings.Builder
	b.WriteByte('{')

	writeKey(&b, "context")
	writeContext(&b, ctx)
	b.WriteByte(',')

	writeKey(&b, "language")
	writeString(&b, strings.ToLower(string(language)))
	b.WriteByte(',')

	writeKey(&b, "policy_name")
	if policyName == "" {
		b.WriteString("null")
	} else {
		writeString(&b, policyName)
	}
	b.WriteByte(',')

	writeKey(&b, "prompt")
	writeString(&b, strings.TrimSpace(prompt))

	b.WriteByte('}')
	return b.String()
}

func writeKey(b *strings.Builder, key string) {
	writeString(b, key)
	b.WriteByte(':')
}

func writeContext(b *strings.Builder, ctx *model.Context) {
	if ctx == nil {
		b.WriteString("{}")
		return
	}

	type kv struct {
		key string
		val func(*strings.Builder)
	}
	var entries []kv

	if len(ctx.Files) > 0 {
		sorted := append([]string(nil), ctx.Files...)
		sort.Strings(sorted)
		entries = append(entries, kv{"files", func(b *strings.Builder) { writeStringArray(b, sorted) }})
	}
	if ctx.Data != "" {
		entries = append(entries, kv{"data", func(b *strings.Builder) { writeString(b, ctx.Data) }})
	}
	if ctx.Environment != "" {
		entries = append(entries, kv{"environment", func(b *strings.Builder) { writeString(b, ctx.Environment) }})
	}
	if len(ctx.Inputs) > 0 {
		count, types := inputsShape(ctx.Inputs)
		entries = append(entries, kv{"inputs", func(b *strings.Builder) {
			b.WriteByte('{')
			writeKey(b, "count")
			b.WriteString(strconv.Itoa(count))
			b.WriteByte(',')
			writeKey(b, "types")
			writeStringArray(b, types)
			b.WriteByte('}')
		}})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })

	b.WriteByte('{')
	for i, e := range entries {
		if i > 0 {
			b.WriteByte(',')
		}
		writeKey(b, e.key)
		e.val(b)
	}
	b.WriteByte('}')
}

// inputsShape reduces a raw inputs slice to {count, sorted unique types},
// so that the *values* of inputs never participate in the fingerprint —
// only their arity and type multiset (§4.1, §9 input-value invariance).
func inputsShape(inputs []interface{}) (int, []string) {
	seen := map[string]struct{}{}
	for _, v := range inputs {
		seen[classify(v)] = struct{}{}
	}
	types := make([]string, 0, len(seen))
	for t := range seen {
		types = append(types, t)
	}
	sort.Strings(types)
	return len(inputs), types
}

func classify(v interface{}) string {
	switch t := v.(type) {
	case bool:
		return "boolean"
	case float64, float32, int, int32, int64, uint, uint32, uint64:
		return "number"
	case string:
		if _, err := strconv.ParseFloat(t, 64); err == nil {
			return "number"
		}
		return "string"
	default:
		return "string"
	}
}

func writeStringArray(b *strings.Builder, vals []string) {
	b.WriteByte('[')
	for i, v := range vals {
		if i > 0 {
			b.WriteByte(',')
		}
		writeString(b, v)
	}
	b.WriteByte(']')
}

// writeString writes a JSON-quoted string with minimal escaping, sufficient
// for canonicalization purposes (the digest input, never parsed back).
func writeString(b *strings.Builder, s string) {
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
}
