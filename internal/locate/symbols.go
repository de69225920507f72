package locate

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hbollon/go-edlib"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/doclink/internal/refstore"
)

// Definition is a named declaration found in a source file.
type Definition struct {
	Name      string
	Container string // receiver or enclosing class, "" at top level
	Span      refstore.Span
}

// Qualified returns Container.Name, or Name at top level.
func (d Definition) Qualified() string {
	if d.Container == "" {
		return d.Name
	}
	return d.Container + "." + d.Name
}

// Definitions parses src as lang and returns its definitions in source order.
func Definitions(ctx context.Context, lang string, src []byte) ([]Definition, error) {
	grammar, ok := GrammarForLanguage(lang)
	if !ok {
		return nil, fmt.Errorf("locate: unsupported language %q", lang)
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(grammar)

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("locate: tree-sitter parse failed: %w", err)
	}
	defer tree.Close()

	q, err := sitter.NewQuery([]byte(definitionQueries[lang]), grammar)
	if err != nil {
		return nil, fmt.Errorf("locate: definition query for %s: %w", lang, err)
	}
	defer q.Close()

	cursor := sitter.NewQueryCursor()
	defer cursor.Close()
	cursor.Exec(q, tree.RootNode())

	var defs []Definition
	for {
		match, ok := cursor.NextMatch()
		if !ok {
			break
		}
		var def, name *sitter.Node
		for _, c := range match.Captures {
			switch q.CaptureNameForId(c.Index) {
			case "def":
				def = c.Node
			case "name":
				name = c.Node
			}
		}
		if def == nil || name == nil {
			continue
		}
		defs = append(defs, Definition{
			Name:      name.Content(src),
			Container: container(def, src),
			Span:      refstore.Span{From: int(def.StartByte()), To: int(def.EndByte())},
		})
	}

	sort.SliceStable(defs, func(i, j int) bool {
		return defs[i].Span.From < defs[j].Span.From
	})
	return defs, nil
}

// container names the receiver of a Go method or the nearest enclosing
// class of any other definition.
func container(def *sitter.Node, src []byte) string {
	if def.Type() == "method_declaration" {
		if recv := def.ChildByFieldName("receiver"); recv != nil {
			if t := firstOfType(recv, "type_identifier"); t != nil {
				return t.Content(src)
			}
		}
		return ""
	}
	for p := def.Parent(); p != nil; p = p.Parent() {
		if !containerTypes[p.Type()] {
			continue
		}
		if n := p.ChildByFieldName("name"); n != nil {
			return n.Content(src)
		}
	}
	return ""
}

func firstOfType(node *sitter.Node, typ string) *sitter.Node {
	if node.Type() == typ {
		return node
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		if found := firstOfType(node.NamedChild(i), typ); found != nil {
			return found
		}
	}
	return nil
}

// findDefinition returns the first definition matching a possibly
// qualified symbol name.
func findDefinition(defs []Definition, symbol string) (Definition, bool) {
	name, owner := symbol, ""
	if i := strings.LastIndex(symbol, "."); i >= 0 {
		owner, name = symbol[:i], symbol[i+1:]
		if j := strings.LastIndex(owner, "."); j >= 0 {
			owner = owner[j+1:]
		}
	}
	for _, d := range defs {
		if d.Name == name && (owner == "" || d.Container == owner) {
			return d, true
		}
	}
	return Definition{}, false
}

// suggest returns the qualified definition name closest to symbol, or ""
// when nothing is similar enough to be worth proposing.
func suggest(defs []Definition, symbol string) string {
	const minSimilarity = 0.5
	best, bestScore := "", float32(0)
	for _, d := range defs {
		q := d.Qualified()
		score, err := edlib.StringsSimilarity(symbol, q, edlib.Levenshtein)
		if err != nil {
			continue
		}
		if score > bestScore {
			best, bestScore = q, score
		}
	}
	if bestScore < minSimilarity {
		return ""
	}
	return best
}
