package router

import (
	"strings"
	"unicode"
)

// domainKeywords is the keyword→domain classifier spec.md §4.2 calls for:
// a small, extensible map from topical keywords to a coarse domain bucket.
// The keyword list doubles as the domain's representative tag set for
// tag_match scoring.
var domainKeywords = map[string][]string{
	"code":      {"code", "function", "repository", "repo", "commit", "branch", "pull", "bug", "test", "compile", "build", "issue", "github"},
	"files":     {"file", "files", "directory", "folder", "path", "read", "write", "list", "disk"},
	"email":     {"email", "mail", "inbox", "message", "send", "reply", "attachment"},
	"calendar":  {"calendar", "event", "meeting", "schedule", "appointment", "invite"},
	"messaging": {"chat", "slack", "message", "channel", "dm", "notify"},
	"web":       {"web", "http", "url", "fetch", "browser", "page", "scrape"},
	"database":  {"database", "sql", "query", "table", "row", "schema", "db"},
	"finance":   {"invoice", "payment", "finance", "expense", "budget", "transaction"},
}

// orderedDomains is domainKeywords' key set in a fixed order, so ties in
// classifyDomain break deterministically (alphabetical).
var orderedDomains = func() []string {
	names := make([]string, 0, len(domainKeywords))
	for d := range domainKeywords {
		names = append(names, d)
	}
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j-1] > names[j]; j-- {
			names[j-1], names[j] = names[j], names[j-1]
		}
	}
	return names
}()

// ClassifyDomain exposes the query-domain classifier to callers outside
// the package (the Gateway needs it to detect context shifts between
// consecutive tools/list calls, independent of a full Route call).
func ClassifyDomain(text string) string {
	return classifyDomain(text)
}

// classifyDomain returns the coarse domain bucket with the most keyword
// hits in text, or "" if nothing matches. Keywords match whole words only.
func classifyDomain(text string) string {
	words := map[string]bool{}
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		words[w] = true
	}
	best, bestCount := "", 0
	for _, domain := range orderedDomains {
		count := 0
		for _, kw := range domainKeywords[domain] {
			if words[kw] {
				count++
			}
		}
		if count > bestCount {
			best, bestCount = domain, count
		}
	}
	return best
}

// domainTags returns domain's representative tag set, used as the
// denominator/numerator basis for tag_match.
func domainTags(domain string) []string {
	return domainKeywords[domain]
}

// tagMatch is the fraction of a domain's representative tags present in
// toolTags.
func tagMatch(domain string, toolTags []string) float64 {
	tags := domainTags(domain)
	if len(tags) == 0 {
		return 0
	}
	tagSet := make(map[string]bool, len(toolTags))
	for _, t := range toolTags {
		tagSet[strings.ToLower(t)] = true
	}
	hits := 0
	for _, t := range tags {
		if tagSet[t] {
			hits++
		}
	}
	return float64(hits) / float64(len(tags))
}

// domainMatch is 1 if the tool (classified from its own tags/description/
// name) belongs to the same domain as the query, else 0.
func domainMatch(queryDomain string, toolTags []string, toolDescription, toolName string) float64 {
	if queryDomain == "" {
		return 0
	}
	toolDomain := classifyDomain(strings.Join(toolTags, " ") + " " + toolDescription + " " + toolName)
	if toolDomain == queryDomain {
		return 1
	}
	return 0
}
