// Package parser extracts tags, card links and an optional YAML header from
// entry text.
package parser

import (
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	linkRe = regexp.MustCompile(`\[\[(.*?)\]\]`)
	tagRe  = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)
)

// Result holds what was found in one or more entries.
type Result struct {
	Header map[string]any
	Body   string
	Links  []string
	Tags   []string
}

// Parse reads one entry's text. A leading block between "---" lines is
// read as a YAML header whose "tags" list adds to the inline #tags.
func Parse(text string) Result {
	header, body := splitHeader(text)
	tags := newSet()
	tags.addAll(headerTags(header))
	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		tags.add(m[1])
	}
	return Result{
		Header: header,
		Body:   body,
		Links:  extractLinks(body),
		Tags:   tags.list,
	}
}

// Merge combines results in order, dropping duplicate tags and links.
// Headers are not merged.
func Merge(results ...Result) Result {
	tags, links := newSet(), newSet()
	bodies := make([]string, 0, len(results))
	for _, r := range results {
		tags.addAll(r.Tags)
		links.addAll(r.Links)
		if r.Body != "" {
			bodies = append(bodies, r.Body)
		}
	}
	return Result{
		Body:  strings.Join(bodies, "\n"),
		Links: links.list,
		Tags:  tags.list,
	}
}

func splitHeader(text string) (map[string]any, string) {
	const delim = "---"
	trimmed := strings.TrimLeft(text, "\n")
	if !strings.HasPrefix(trimmed, delim+"\n") {
		return nil, text
	}
	rest := trimmed[len(delim):]
	idx := strings.Index(rest, "\n"+delim)
	if idx < 0 {
		return nil, text
	}
	block := rest[:idx]
	body := strings.TrimLeft(rest[idx+1+len(delim):], "\n")

	var header map[string]any
	if err := yaml.Unmarshal([]byte(block), &header); err != nil {
		return nil, text
	}
	return header, body
}

func headerTags(header map[string]any) []string {
	raw, ok := header["tags"].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

// extractLinks returns link targets in order of appearance. [[Target|Alias]]
// yields Target.
func extractLinks(body string) []string {
	links := newSet()
	for _, m := range linkRe.FindAllStringSubmatch(body, -1) {
		target, _, _ := strings.Cut(m[1], "|")
		links.add(strings.TrimSpace(target))
	}
	return links.list
}

type set struct {
	seen map[string]struct{}
	list []string
}

func newSet() *set {
	return &set{seen: make(map[string]struct{})}
}

func (s *set) add(v string) {
	if v == "" {
		return
	}
	if _, ok := s.seen[v]; ok {
		return
	}
	s.seen[v] = struct{}{}
	s.list = append(s.list, v)
}

func (s *set) addAll(vs []string) {
	for _, v := range vs {
		s.add(v)
	}
}
