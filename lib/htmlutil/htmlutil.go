package htmlutil

import (
	"bytes"
	"strings"

	"apti-backend/internal/components/telemetry"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const report_extract_text = "htmlutil.extract-text"

// GetText returns the concatenated text of every text node under node.
func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

// OwnText returns the text directly under the first node of sel, ignoring
// the text of child elements. `<li>전기<strong>67</strong></li>` gives "전기".
func OwnText(sel *goquery.Selection) string {
	if sel == nil || sel.Length() == 0 {
		return ""
	}
	var buffer bytes.Buffer
	for child := sel.Get(0).FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.TextNode {
			buffer.WriteString(child.Data)
		}
	}
	return strings.TrimSpace(buffer.String())
}

type via int

const (
	viaSelectOne via = iota
	viaFindNext
)

type extractConfig struct {
	via  via
	attr string
}

type ExtractOption func(cfg *extractConfig)

// ViaFindNext resolves the target as the next sibling element of root
// (filtered by the selector if one is given) instead of a descendant.
func ViaFindNext() ExtractOption {
	return func(cfg *extractConfig) {
		cfg.via = viaFindNext
	}
}

// WithAttr reads the given attribute of the target instead of its text.
func WithAttr(name string) ExtractOption {
	return func(cfg *extractConfig) {
		cfg.attr = name
	}
}

// ExtractText resolves a single element relative to root and returns its
// trimmed text (or attribute). When root is absent or the element (or
// attribute) cannot be found, fallbackLog is reported once as a warning and
// an empty string is returned. Callers never need to check for presence
// themselves.
func ExtractText(
	tel telemetry.API,
	root *goquery.Selection,
	selector string,
	fallbackLog string,
	opts ...ExtractOption,
) string {
	cfg := extractConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	if root == nil || root.Length() == 0 {
		tel.ReportWarning(report_extract_text, fallbackLog)
		return ""
	}

	var target *goquery.Selection
	switch cfg.via {
	case viaFindNext:
		if selector == "" {
			target = root.First().Next()
		} else {
			target = root.First().NextAllFiltered(selector).First()
		}
	default:
		if selector == "" {
			target = root.First()
		} else {
			target = root.Find(selector).First()
		}
	}

	if target.Length() == 0 {
		tel.ReportWarning(report_extract_text, fallbackLog, selector)
		return ""
	}

	if cfg.attr != "" {
		value, exists := target.Attr(cfg.attr)
		if !exists {
			tel.ReportWarning(report_extract_text, fallbackLog, selector, cfg.attr)
			return ""
		}
		return strings.TrimSpace(value)
	}

	return strings.TrimSpace(GetText(target.Get(0)))
}
