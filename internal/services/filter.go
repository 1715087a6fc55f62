package services

import (
	"sort"
	"strings"
)

// Filter is the canonical, order-independent form of a search query. Two
// queries that differ only in token order or quoting produce equal Filters
// and therefore the same signature.
type Filter struct {
	// Text is the free-text remainder after structured tokens are removed
	Text string
	// From restricts to sender addresses or display names
	From []string
	// To restricts to recipient addresses
	To []string
	// Unread, when set, restricts to threads with unread messages
	Unread bool
	// Trashed, when set, scopes the listing to trashed content
	Trashed bool
	// Drafts, when set, scopes the listing to draft content
	Drafts bool
}

// IsZero reports whether the filter imposes no restriction at all
func (f Filter) IsZero() bool {
	return f.Text == "" && len(f.From) == 0 && len(f.To) == 0 &&
		!f.Unread && !f.Trashed && !f.Drafts
}

// IsSearch reports whether the filter narrows the listing beyond the plain
// mailbox view. Folder scoping alone (trash, drafts) is navigation, not
// search.
func (f Filter) IsSearch() bool {
	return f.Text != "" || len(f.From) > 0 || len(f.To) > 0 || f.Unread
}

// Signature returns the canonical serialized form, used as the cache filter
// key. The zero filter has the empty signature.
func (f Filter) Signature() string {
	return f.String()
}

// String serializes the filter back into query syntax: structured tokens in
// canonical order, then the free text. Values containing spaces are quoted.
func (f Filter) String() string {
	var parts []string

	from := append([]string(nil), f.From...)
	sort.Strings(from)
	for _, v := range from {
		parts = append(parts, "from:"+quoteValue(v))
	}
	to := append([]string(nil), f.To...)
	sort.Strings(to)
	for _, v := range to {
		parts = append(parts, "to:"+quoteValue(v))
	}
	if f.Unread {
		parts = append(parts, "is:unread")
	}
	if f.Trashed {
		parts = append(parts, "in:trash")
	}
	if f.Drafts {
		parts = append(parts, "in:drafts")
	}
	if f.Text != "" {
		parts = append(parts, f.Text)
	}
	return strings.Join(parts, " ")
}

// ParseQuery parses raw query text into a Filter. Unrecognized tokens and
// malformed operators fall through into the free-text remainder, so nothing
// the user typed is silently dropped.
func ParseQuery(query string) Filter {
	var f Filter
	var text []string

	for _, tok := range tokenizeQuery(query) {
		op, val, ok := splitOperator(tok)
		if !ok {
			text = append(text, tok)
			continue
		}
		switch op {
		case "from":
			f.From = append(f.From, val)
		case "to":
			f.To = append(f.To, val)
		case "is":
			if strings.EqualFold(val, "unread") {
				f.Unread = true
			} else {
				text = append(text, tok)
			}
		case "in":
			switch strings.ToLower(val) {
			case "trash":
				f.Trashed = true
			case "drafts", "draft":
				f.Drafts = true
			default:
				text = append(text, tok)
			}
		default:
			text = append(text, tok)
		}
	}

	f.Text = strings.Join(text, " ")
	return f
}

// tokenizeQuery splits on whitespace while keeping quoted spans together,
// including operator values like from:"Jane Doe". An unterminated quote runs
// to the end of the input.
func tokenizeQuery(query string) []string {
	var tokens []string
	var cur strings.Builder
	inQuote := false

	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}

	for _, r := range query {
		switch {
		case r == '"':
			inQuote = !inQuote
			cur.WriteRune(r)
		case !inQuote && (r == ' ' || r == '\t' || r == '\n'):
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return tokens
}

// splitOperator splits an operator:value token. A bare "from:" with no value
// is not an operator; neither is a colon inside a quoted span.
func splitOperator(tok string) (op, val string, ok bool) {
	if strings.HasPrefix(tok, `"`) {
		return "", "", false
	}
	i := strings.IndexByte(tok, ':')
	if i <= 0 || i == len(tok)-1 {
		return "", "", false
	}
	return strings.ToLower(tok[:i]), unquoteValue(tok[i+1:]), true
}

func quoteValue(v string) string {
	if strings.ContainsAny(v, " \t") {
		return `"` + v + `"`
	}
	return v
}

func unquoteValue(v string) string {
	if len(v) >= 2 && strings.HasPrefix(v, `"`) && strings.HasSuffix(v, `"`) {
		return v[1 : len(v)-1]
	}
	return strings.TrimPrefix(v, `"`)
}
