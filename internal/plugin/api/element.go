package api

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// PluginAttr marks every element created through utils.createElement.
const PluginAttr = "data-plugin-id"

// CreateElement builds an element owned by pluginID and returns its HTML.
//
// attrs values are stringified, except "className" which maps to class,
// "textContent" which becomes a text child and "innerHTML" which is parsed
// as a fragment. children may hold strings (text nodes) or nested element
// specs: tables with "tag", "attrs" and "children" keys.
func CreateElement(pluginID, tag string, attrs map[string]any, children []any) (string, error) {
	node, err := buildElement(pluginID, tag, attrs, children)
	if err != nil {
		return "", err
	}
	node.Attr = append(node.Attr, html.Attribute{Key: PluginAttr, Val: pluginID})

	var b strings.Builder
	if err := html.Render(&b, node); err != nil {
		return "", fmt.Errorf("render element: %w", err)
	}
	return b.String(), nil
}

func buildElement(pluginID, tag string, attrs map[string]any, children []any) (*html.Node, error) {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if !validTag(tag) {
		return nil, argError("createElement", "invalid tag %q", tag)
	}

	node := &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
	}

	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := attrs[k]
		switch k {
		case "className":
			node.Attr = append(node.Attr, html.Attribute{Key: "class", Val: fmt.Sprint(v)})
		case "textContent":
			node.AppendChild(&html.Node{Type: html.TextNode, Data: fmt.Sprint(v)})
		case "innerHTML":
			nodes, err := html.ParseFragment(strings.NewReader(fmt.Sprint(v)), node)
			if err != nil {
				return nil, fmt.Errorf("createElement: parse innerHTML: %w", err)
			}
			for _, n := range nodes {
				node.AppendChild(n)
			}
		case PluginAttr:
			// Ownership is always set by the runtime.
		default:
			node.Attr = append(node.Attr, html.Attribute{Key: k, Val: fmt.Sprint(v)})
		}
	}

	for _, child := range children {
		switch c := child.(type) {
		case nil:
		case string:
			node.AppendChild(&html.Node{Type: html.TextNode, Data: c})
		case map[string]any:
			childTag, _ := c["tag"].(string)
			childAttrs, _ := c["attrs"].(map[string]any)
			childChildren, _ := c["children"].([]any)
			n, err := buildElement(pluginID, childTag, childAttrs, childChildren)
			if err != nil {
				return nil, err
			}
			node.AppendChild(n)
		default:
			node.AppendChild(&html.Node{Type: html.TextNode, Data: fmt.Sprint(c)})
		}
	}
	return node, nil
}

func validTag(tag string) bool {
	if tag == "" {
		return false
	}
	for i, r := range tag {
		switch {
		case r >= 'a' && r <= 'z':
		case i > 0 && (r >= '0' && r <= '9' || r == '-'):
		default:
			return false
		}
	}
	return true
}
