package htmlutil

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

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

// GetTrimmedText is GetText with surrounding whitespace removed.
func GetTrimmedText(node *html.Node) string {
	return strings.TrimSpace(GetText(node))
}

// CollapseWhitespace trims s and replaces every inner run of whitespace with
// a single space. Unicode spaces count, so &nbsp; collapses too.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func GetAttr(node *html.Node, key string) (string, bool) {
	for _, a := range node.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// HiddenInputs collects the name -> value pairs of every <input type="hidden">
// that has a name. When a name repeats, the last value wins.
func HiddenInputs(doc *goquery.Document) map[string]string {
	fields := map[string]string{}
	for _, input := range doc.Find("input").Nodes {
		inputType, _ := GetAttr(input, "type")
		if !strings.EqualFold(strings.TrimSpace(inputType), "hidden") {
			continue
		}
		name, ok := GetAttr(input, "name")
		if !ok || name == "" {
			continue
		}
		value, _ := GetAttr(input, "value")
		fields[name] = value
	}
	return fields
}
