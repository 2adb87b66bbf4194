package locator

import (
	"fmt"
	"strings"
)

// Method selects how a Strategy's expression is matched against the document
type Method int

const (
	// Structural is a CSS query over tags and attributes
	Structural Method = iota
	// TextContains matches elements whose rendered text contains Expr
	TextContains
)

func (m Method) String() string {
	switch m {
	case Structural:
		return "css"
	case TextContains:
		return "text"
	default:
		return fmt.Sprintf("method(%d)", int(m))
	}
}

// Strategy is one way of locating a UI element. Values are immutable.
type Strategy struct {
	Method Method
	Expr   string
	// Tag is the XPath node test used by text strategies, e.g. "button" or "*[@role='option']".
	Tag string
	// Fold makes text matching case-insensitive.
	Fold bool
}

// CSS returns a structural strategy for a CSS selector
func CSS(query string) Strategy {
	return Strategy{Method: Structural, Expr: query}
}

// Text returns an exact-case text containment strategy restricted to tag
func Text(tag, text string) Strategy {
	if tag == "" {
		tag = "*"
	}
	return Strategy{Method: TextContains, Expr: text, Tag: tag}
}

// TextFold is the case-insensitive variant of Text
func TextFold(tag, text string) Strategy {
	s := Text(tag, text)
	s.Fold = true
	return s
}

// String is stable and unique per strategy; it doubles as a map key in tests.
func (s Strategy) String() string {
	switch s.Method {
	case Structural:
		return "css:" + s.Expr
	case TextContains:
		prefix := "text"
		if s.Fold {
			prefix = "textfold"
		}
		return fmt.Sprintf("%s:%s:%s", prefix, s.tag(), s.Expr)
	default:
		return s.Method.String() + ":" + s.Expr
	}
}

func (s Strategy) tag() string {
	if s.Tag == "" {
		return "*"
	}
	return s.Tag
}

// Validate reports whether the strategy is well formed
func (s Strategy) Validate() error {
	if strings.TrimSpace(s.Expr) == "" {
		return fmt.Errorf("empty %s expression", s.Method)
	}
	switch s.Method {
	case Structural:
		if s.Fold {
			return fmt.Errorf("css strategy %q cannot be case-folded", s.Expr)
		}
	case TextContains:
	default:
		return fmt.Errorf("unknown method %d", int(s.Method))
	}
	return nil
}

const (
	upperAlpha = "ABCDEFGHIJKLMNOPQRSTUVWXYZÄÖÜ"
	lowerAlpha = "abcdefghijklmnopqrstuvwxyzäöü"
)

// XPath renders a text strategy as an XPath expression selecting the deepest
// elements whose normalized text contains Expr. When scoped is true the
// expression is relative to a context node.
func (s Strategy) XPath(scoped bool) string {
	tag := s.tag()
	haystack := "normalize-space(.)"
	needle := xpathLiteral(s.Expr)
	if s.Fold {
		haystack = fmt.Sprintf("translate(normalize-space(.), '%s', '%s')", upperAlpha, lowerAlpha)
		needle = xpathLiteral(strings.ToLower(s.Expr))
	}
	cond := fmt.Sprintf("contains(%s, %s)", haystack, needle)

	// Exclude ancestors so a match on <body> does not shadow the real target.
	child := tag
	if i := strings.Index(child, "["); i >= 0 {
		child = child[:i]
	}
	expr := fmt.Sprintf("//%s[%s and not(.//%s[%s])]", tag, cond, child, cond)
	if scoped {
		return "." + expr
	}
	return expr
}

// xpathLiteral quotes s for XPath 1.0, which has no escape sequences.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		if p != "" {
			quoted = append(quoted, "'"+p+"'")
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}
