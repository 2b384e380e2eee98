package zim

import (
	"regexp"
	"strings"

	"github.com/bevelgacom/zimgo/internal/zimerror"
)

// FuzzyRule is one MATCH/REPLACE/SPLIT(RSPLIT)/ARGS block: a regex that
// recognizes a family of equivalent URLs, plus either a replacement
// pattern or a split point that reduces any matching URL to its canonical
// form, plus zero or more ARGS groups naming query parameters worth
// retrying individually if the canonical form 404s.
type FuzzyRule struct {
	MatchString string
	Match       *regexp.Regexp
	Replace     string
	Split       string
	SplitLast   bool
	ArgsList    [][]string
}

// FuzzyRules is a parsed X/fuzzy.ini-style rule set, applied in file order:
// the first rule whose Match finds anywhere in the queried URL wins.
type FuzzyRules struct {
	Rules []FuzzyRule
}

// ParseFuzzyRules parses the X/fuzzy.ini body. Lines are "ORDER VALUE"
// pairs split on the first space; unrecognized orders are ignored. A
// MATCH line starts a new rule, defaulting to Split="?", SplitLast=false,
// matching a bare MATCH-only rule's behavior of truncating at the first
// query string.
func ParseFuzzyRules(data string) (*FuzzyRules, error) {
	fr := &FuzzyRules{}
	var cur *FuzzyRule

	flush := func() {
		if cur != nil {
			fr.Rules = append(fr.Rules, *cur)
			cur = nil
		}
	}

	for _, line := range strings.Split(data, "\n") {
		k := strings.IndexByte(line, ' ')
		if k < 0 {
			continue
		}
		order, value := line[:k], line[k+1:]
		switch order {
		case "MATCH":
			flush()
			re, err := regexp.Compile(value)
			if err != nil {
				return nil, zimerror.Wrapf(zimerror.ErrFileFormat, "fuzzy rule regex: "+value, err)
			}
			cur = &FuzzyRule{MatchString: value, Match: re, Split: "?", SplitLast: false}
		case "REPLACE":
			if cur != nil {
				cur.Replace = value
			}
		case "SPLIT":
			if cur != nil {
				cur.Split, cur.SplitLast = value, false
			}
		case "RSPLIT":
			if cur != nil {
				cur.Split, cur.SplitLast = value, true
			}
		case "ARGS":
			if cur != nil {
				cur.ArgsList = append(cur.ArgsList, strings.Split(value, "&"))
			}
		}
	}
	flush()
	return fr, nil
}

// getRule returns the first rule whose Match pattern finds anywhere in
// queried.
func (fr *FuzzyRules) getRule(queried string) (*FuzzyRule, bool) {
	for i := range fr.Rules {
		if fr.Rules[i].Match.FindStringIndex(queried) != nil {
			return &fr.Rules[i], true
		}
	}
	return nil, false
}

func queryParamValue(queryParams [][2]string, name string) string {
	for _, p := range queryParams {
		if p[0] == name {
			return p[1]
		}
	}
	return ""
}

// GetFuzzyPaths returns the candidate lookup paths for (path, queryParams),
// most specific first: the exact queried URL, the rule-derived canonical
// URL (query string stripped), then one URL per ARGS group: the canonical
// URL with only that group's query parameters appended. When no rule matches,
// the canonical form is the queried URL truncated at its first "?"
// (inclusive), mirroring the original's fallback.
func (fr *FuzzyRules) GetFuzzyPaths(path string, queryParams [][2]string) []string {
	var b strings.Builder
	b.WriteString(path)
	b.WriteByte('?')
	sep := ""
	for _, p := range queryParams {
		b.WriteString(sep)
		b.WriteString(p[0])
		b.WriteByte('=')
		b.WriteString(p[1])
		sep = "&"
	}
	queried := b.String()

	urls := []string{queried}

	rule, ok := fr.getRule(queried)
	if !ok {
		if idx := strings.IndexByte(queried, '?'); idx >= 0 {
			urls = append(urls, queried[:idx+1])
		} else {
			urls = append(urls, queried)
		}
		return urls
	}

	var canon string
	if rule.Replace != "" {
		canon = rule.Match.ReplaceAllString(queried, rule.Replace)
	} else {
		var idx int
		if rule.SplitLast {
			idx = strings.LastIndex(queried, rule.Split)
		} else {
			idx = strings.Index(queried, rule.Split)
		}
		if idx < 0 {
			canon = queried
		} else {
			canon = queried[:idx+len(rule.Split)]
		}
	}
	if idx := strings.IndexByte(canon, '?'); idx >= 0 {
		canon = canon[:idx]
	}
	urls = append(urls, canon)

	for _, args := range rule.ArgsList {
		var q strings.Builder
		q.WriteString(canon)
		sep := "?"
		for _, arg := range args {
			q.WriteString(sep)
			q.WriteString(arg)
			q.WriteByte('=')
			q.WriteString(queryParamValue(queryParams, arg))
			sep = "&"
		}
		urls = append(urls, q.String())
	}
	return urls
}
