package xmlutils

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/xmlpath.v2"
)

// ParseXML parses an XML document held in memory and returns its root node
func ParseXML(data []byte) (*xmlpath.Node, error) {
	root, err := xmlpath.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse XML: %w", err)
	}
	return root, nil
}

// ExtractFromXML extracts values from an XML node using an XPath expression
func ExtractFromXML(root *xmlpath.Node, xpath string) ([]string, error) {
	path, err := xmlpath.Compile(xpath)
	if err != nil {
		return nil, fmt.Errorf("failed to compile XPath: %w", err)
	}

	var values []string
	iter := path.Iter(root)
	for iter.Next() {
		values = append(values, iter.Node().String())
	}

	return values, nil
}

// First returns the trimmed first value matched by xpath, or an empty string
func First(root *xmlpath.Node, xpath string) (string, error) {
	values, err := ExtractFromXML(root, xpath)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(GetOrEmpty(values, 0)), nil
}

// GetOrEmpty returns the value at the specified index in a slice, or an empty string if the index is out of bounds
func GetOrEmpty(slice []string, index int) string {
	if index < len(slice) {
		return slice[index]
	}
	return ""
}

// CleanText collapses runs of whitespace, including newlines, into single spaces
func CleanText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
