package services

import (
	"strings"

	"golang.org/x/net/html"
)

// HTMLToText derives the plain-text variant of a compose body. Block-level
// elements become line breaks, links keep their target in brackets, and
// script/style subtrees are dropped.
func HTMLToText(body string) (string, error) {
	if strings.TrimSpace(body) == "" {
		return "", nil
	}

	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	renderText(&b, doc)

	lines := strings.Split(b.String(), "\n")
	out := make([]string, 0, len(lines))
	blank := 0
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			blank++
			if blank > 1 {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n")), nil
}

func renderText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(collapseSpace(n.Data))
		return
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "head":
			return
		case "br":
			b.WriteString("\n")
			return
		case "li":
			b.WriteString("- ")
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		renderText(b, c)
	}

	if n.Type == html.ElementNode {
		switch n.Data {
		case "p", "div", "li", "tr", "blockquote",
			"h1", "h2", "h3", "h4", "h5", "h6", "ul", "ol":
			b.WriteString("\n")
		case "a":
			if href := attrValue(n, "href"); href != "" && !strings.HasPrefix(href, "mailto:") {
				b.WriteString(" [" + href + "]")
			}
		}
	}
}

// collapseSpace squeezes whitespace runs to single spaces, keeping boundary
// spaces so adjacent inline nodes stay separated. Whitespace-only nodes
// (formatting between block elements) vanish.
func collapseSpace(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	var b strings.Builder
	pendingSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			pendingSpace = true
			continue
		}
		if pendingSpace {
			b.WriteByte(' ')
			pendingSpace = false
		}
		b.WriteRune(r)
	}
	if pendingSpace {
		b.WriteByte(' ')
	}
	return b.String()
}

func attrValue(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}
