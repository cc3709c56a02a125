// internal/resolver/text.go
package resolver

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// compile accepts selector groups. cascadia.Selector satisfies goquery.Matcher.
func compile(selector string) (goquery.Matcher, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("bad selector %q: %w", selector, err)
	}
	return sel, nil
}

// effectiveText is the text a reader perceives as the element's label or content.
func effectiveText(doc *goquery.Document, s *goquery.Selection) string {
	switch goquery.NodeName(s) {
	case "input", "select", "textarea", "button", "a":
		return controlText(doc, s)
	case "option":
		own := s.Text()
		list := s.ParentsFiltered("select").First()
		if list.Length() == 0 {
			return own
		}
		if first := list.Find("option").First(); first.Length() > 0 && first.Nodes[0] == s.Nodes[0] {
			return joinText(controlText(doc, list), own)
		}
		return own
	default:
		return s.Text()
	}
}

func controlText(doc *goquery.Document, s *goquery.Selection) string {
	var parts []string
	tag := goquery.NodeName(s)
	inputType := strings.ToLower(s.AttrOr("type", ""))

	if tag == "input" && (inputType == "radio" || inputType == "checkbox") {
		if fs := s.Closest("fieldset"); fs.Length() > 0 {
			first := fs.Find(`input[type="radio"], input[type="checkbox"]`).First()
			if first.Length() > 0 && first.Nodes[0] == s.Nodes[0] {
				parts = append(parts, fs.ChildrenFiltered("legend").First().Text())
			}
		}
	}

	if id, ok := s.Attr("id"); ok && id != "" {
		doc.Find("label").Each(func(_ int, l *goquery.Selection) {
			if l.AttrOr("for", "") == id {
				parts = append(parts, l.Text())
			}
		})
	}
	s.ParentsFiltered("label").Each(func(_ int, l *goquery.Selection) {
		parts = append(parts, l.Text())
	})

	if refs, ok := s.Attr("aria-labelledby"); ok {
		for _, ref := range strings.Fields(refs) {
			doc.Find("[id]").Each(func(_ int, el *goquery.Selection) {
				if el.AttrOr("id", "") == ref {
					parts = append(parts, el.Text())
				}
			})
		}
	}
	if label, ok := s.Attr("aria-label"); ok {
		parts = append(parts, label)
	}

	switch {
	case tag == "a" || tag == "button":
		parts = append(parts, s.Text())
	case tag == "input" && (inputType == "button" || inputType == "submit" || inputType == "reset"):
		parts = append(parts, s.AttrOr("value", ""))
	}
	return joinText(parts...)
}

func joinText(parts ...string) string {
	var b strings.Builder
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(p)
	}
	return b.String()
}
