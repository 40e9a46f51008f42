package rewrite

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html/charset"
)

// urlAttributes maps each rewritten element to its URL-bearing attribute.
var urlAttributes = map[string]string{
	"a":      "href",
	"link":   "href",
	"script": "src",
	"img":    "src",
	"iframe": "src",
	"form":   "action",
}

type attrRule struct {
	sel  cascadia.Selector
	attr string
}

var attrRules = compileAttrRules(urlAttributes)

func compileAttrRules(m map[string]string) []attrRule {
	tags := make([]string, 0, len(m))
	for tag := range m {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	rules := make([]attrRule, 0, len(tags))
	for _, tag := range tags {
		attr := m[tag]
		rules = append(rules, attrRule{
			sel:  cascadia.MustCompile(tag + "[" + attr + "]"),
			attr: attr,
		})
	}
	return rules
}

// HTMLContentType is the content type of every rewritten document. The body
// is transcoded to UTF-8 while parsing.
const HTMLContentType = "text/html; charset=utf-8"

// HTML rewrites the URL attributes of an HTML document, appends the tools
// script to its body and serializes it back. contentType is used to pick the
// source charset.
func (rw *Rewriter) HTML(body []byte, contentType string) (string, error) {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return "", fmt.Errorf("detect charset: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	for _, rule := range attrRules {
		doc.FindMatcher(rule.sel).Each(func(_ int, s *goquery.Selection) {
			v, ok := s.Attr(rule.attr)
			if !ok {
				return
			}
			if nv := rw.URL(v); nv != v {
				s.SetAttr(rule.attr, nv)
			}
		})
	}

	injectTools(doc)

	out, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	return out, nil
}
