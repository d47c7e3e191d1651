package outline

import (
	"bytes"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"oxinot/internal/domain"
	"oxinot/internal/ordering"
)

// Node is one item of a parsed or projected outline.
type Node struct {
	Content  string  `json:"content"`
	Children []*Node `json:"children,omitempty"`
}

// Parse turns a markdown document into an outline: nested bullet lists map
// to nested nodes, any other top-level block becomes a root node of its own.
func Parse(src []byte) []*Node {
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(src))

	var roots []*Node
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.List:
			roots = append(roots, listNodes(node, src)...)
		default:
			if t := blockText(n, src); t != "" {
				roots = append(roots, &Node{Content: t})
			}
		}
	}
	return roots
}

func listNodes(list *ast.List, src []byte) []*Node {
	var nodes []*Node
	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		node := &Node{}
		for c := item.FirstChild(); c != nil; c = c.NextSibling() {
			switch child := c.(type) {
			case *ast.List:
				node.Children = append(node.Children, listNodes(child, src)...)
			default:
				if t := blockText(c, src); t != "" {
					if node.Content != "" {
						node.Content += "\n"
					}
					node.Content += t
				}
			}
		}
		nodes = append(nodes, node)
	}
	return nodes
}

// blockText gets the raw text content of a goldmark block node.
func blockText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	if n.Type() == ast.TypeBlock {
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			buf.Write(line.Value(src))
		}
	}
	return strings.TrimSpace(buf.String())
}

// Render writes an outline back as a markdown bullet list, two spaces of
// indent per level.
func Render(nodes []*Node) string {
	var sb strings.Builder
	renderInto(&sb, nodes, 0)
	return sb.String()
}

func renderInto(sb *strings.Builder, nodes []*Node, depth int) {
	for _, n := range nodes {
		indent := strings.Repeat("  ", depth)
		lines := strings.Split(n.Content, "\n")
		sb.WriteString(indent + "- " + lines[0] + "\n")
		for _, cont := range lines[1:] {
			sb.WriteString(indent + "  " + cont + "\n")
		}
		renderInto(sb, n.Children, depth+1)
	}
}

// FromBlocks projects a flat block list into an outline tree, grouping by
// parent and ordering siblings by weight.
func FromBlocks(blocks []domain.Block) []*Node {
	byParent := make(map[string][]domain.Block)
	for _, b := range blocks {
		key := ""
		if b.ParentID != nil {
			key = *b.ParentID
		}
		byParent[key] = append(byParent[key], b)
	}
	for key := range byParent {
		group := byParent[key]
		sort.Slice(group, func(i, j int) bool {
			return ordering.Less(group[i].OrderWeight, group[j].OrderWeight, group[i].ID, group[j].ID)
		})
	}

	var build func(key string) []*Node
	build = func(key string) []*Node {
		var nodes []*Node
		for _, b := range byParent[key] {
			nodes = append(nodes, &Node{Content: b.Content, Children: build(b.ID)})
		}
		return nodes
	}
	return build("")
}
