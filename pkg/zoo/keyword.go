package zoo

import (
	"strings"
	"unicode"
)

// tokenize splits on non-alphanumeric boundaries plus camelCase and
// snake_case boundaries, lower-casing every token, per spec.md §4.1's
// keyword-mode tokenization rule.
func tokenize(s string) []string {
	// Insert boundaries at camelCase transitions and underscores first,
	// so "listDirectory" and "list_directory" both split the same way.
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if r == '_' || r == '-' {
			b.WriteRune(' ')
			continue
		}
		if i > 0 && unicode.IsUpper(r) && unicode.IsLower(runes[i-1]) {
			b.WriteRune(' ')
		}
		b.WriteRune(r)
	}

	fields := strings.FieldsFunc(b.String(), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		tokens = append(tokens, strings.ToLower(f))
	}
	return tokens
}

// keywordIndex is an in-memory inverted index over tool name, description,
// and tags, rebuilt atomically alongside the vector snapshot.
type keywordIndex struct {
	// postings maps a token to the set of tool names containing it, split
	// by which field it came from so scoreKeyword can apply per-field
	// weights.
	nameTokens        map[string]map[string]bool
	descriptionTokens map[string]map[string]bool
	tagTokens         map[string]map[string]bool
}

func newKeywordIndex(tools []indexedTool) *keywordIndex {
	idx := &keywordIndex{
		nameTokens:        map[string]map[string]bool{},
		descriptionTokens: map[string]map[string]bool{},
		tagTokens:         map[string]map[string]bool{},
	}
	for _, t := range tools {
		addTokens(idx.nameTokens, tokenize(t.schema.Name), t.schema.Name)
		addTokens(idx.descriptionTokens, tokenize(t.schema.Description), t.schema.Name)
		for _, tag := range t.schema.Tags {
			addTokens(idx.tagTokens, tokenize(tag), t.schema.Name)
		}
	}
	return idx
}

func addTokens(m map[string]map[string]bool, tokens []string, toolName string) {
	for _, tok := range tokens {
		set, ok := m[tok]
		if !ok {
			set = map[string]bool{}
			m[tok] = set
		}
		set[toolName] = true
	}
}

// keywordNameWeight, keywordTagWeight, keywordDescWeight match spec.md
// §4.1's {name: 3, tags: 2, description: 1} weighting.
const (
	keywordNameWeight = 3.0
	keywordTagWeight  = 2.0
	keywordDescWeight = 1.0
)

// score returns, per tool name, the normalized keyword overlap score for
// the query, in [0, 1].
func (k *keywordIndex) score(query string) map[string]float64 {
	qTokens := tokenize(query)
	if len(qTokens) == 0 {
		return map[string]float64{}
	}

	raw := map[string]float64{}
	maxPossible := float64(len(qTokens)) * (keywordNameWeight + keywordTagWeight + keywordDescWeight)

	for _, tok := range qTokens {
		for name := range k.nameTokens[tok] {
			raw[name] += keywordNameWeight
		}
		for name := range k.tagTokens[tok] {
			raw[name] += keywordTagWeight
		}
		for name := range k.descriptionTokens[tok] {
			raw[name] += keywordDescWeight
		}
	}

	out := make(map[string]float64, len(raw))
	for name, v := range raw {
		if maxPossible > 0 {
			out[name] = v / maxPossible
		}
		if out[name] > 1 {
			out[name] = 1
		}
	}
	return out
}
