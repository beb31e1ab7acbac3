package dom

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// ParseHTML builds a Page from an HTML document served at pageURL.
// The page is reported as fully loaded; callers driving a load signal may reset
// ReadyState first.
func ParseHTML(r io.Reader, pageURL string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse page html: %w", err)
	}
	p, err := NewPage(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url %q: %w", pageURL, err)
	}
	p.NavigationStart = time.Now()
	p.Title = strings.TrimSpace(doc.Find("title").First().Text())
	if lang, ok := doc.Find("html").Attr("lang"); ok {
		p.Language = lang
	}

	forms := make(map[*html.Node]*Form)
	doc.Find("form").Each(func(_ int, s *goquery.Selection) {
		f := &Form{
			ID:     s.AttrOr("id", ""),
			Name:   s.AttrOr("name", ""),
			Action: s.AttrOr("action", ""),
			Attrs:  attrs(s.Get(0)),
		}
		forms[s.Get(0)] = p.AddForm(f)
	})

	labels := make(map[string]string)
	doc.Find("label[for]").Each(func(_ int, s *goquery.Selection) {
		id := s.AttrOr("for", "")
		if _, seen := labels[id]; !seen {
			labels[id] = strings.TrimSpace(s.Text())
		}
	})

	doc.Find("input, textarea, select").Each(func(_ int, s *goquery.Selection) {
		node := s.Get(0)
		e := &Element{
			Tag:         node.Data,
			Name:        s.AttrOr("name", ""),
			ID:          s.AttrOr("id", ""),
			Placeholder: s.AttrOr("placeholder", ""),
			FormRef:     s.AttrOr("form", ""),
			Attrs:       attrs(node),
		}
		_, e.Checked = s.Attr("checked")
		_, e.Disabled = s.Attr("disabled")
		_, e.Multiple = s.Attr("multiple")
		e.Hidden = hiddenByStyle(node)

		switch e.Tag {
		case "input":
			e.Type = strings.ToLower(s.AttrOr("type", "text"))
			e.Value = s.AttrOr("value", "")
		case "textarea":
			e.Value = s.Text()
		case "select":
			e.Options = options(s, e.Multiple)
		}

		e.Label = labelFor(s, e.ID, labels)

		var owner *Form
		if fs := s.Closest("form"); fs.Length() > 0 {
			owner = forms[fs.Get(0)]
		}
		p.AddElement(owner, e)
		if e.Tag == "select" {
			e.Select(e.SelectedValues()...)
		}
	})
	return p, nil
}

func attrs(n *html.Node) map[string]string {
	out := make(map[string]string, len(n.Attr))
	for _, a := range n.Attr {
		out[strings.ToLower(a.Key)] = a.Val
	}
	return out
}

func options(s *goquery.Selection, multiple bool) []Option {
	var out []Option
	anySelected := false
	s.Find("option").Each(func(_ int, o *goquery.Selection) {
		text := strings.TrimSpace(o.Text())
		opt := Option{Value: o.AttrOr("value", text), Text: text}
		_, opt.Selected = o.Attr("selected")
		anySelected = anySelected || opt.Selected
		out = append(out, opt)
	})
	// A single select always shows one option.
	if !multiple && !anySelected && len(out) > 0 {
		out[0].Selected = true
	}
	return out
}

func labelFor(s *goquery.Selection, id string, labels map[string]string) string {
	if id != "" {
		if l, ok := labels[id]; ok {
			return l
		}
	}
	if l := s.Parent().Find("label").First(); l.Length() > 0 {
		return strings.TrimSpace(l.Text())
	}
	return ""
}

// hiddenByStyle approximates getComputedStyle: the node or an ancestor carries the
// hidden attribute or an inline display:none / visibility:hidden.
func hiddenByStyle(n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		for _, a := range n.Attr {
			switch strings.ToLower(a.Key) {
			case "hidden":
				return true
			case "style":
				style := strings.ReplaceAll(strings.ToLower(a.Val), " ", "")
				if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
					return true
				}
			}
		}
	}
	return false
}
