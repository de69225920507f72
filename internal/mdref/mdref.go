// Package mdref reads code references out of markdown documentation.
//
// A code reference is a markdown link whose destination uses the code:
// scheme. The link text is the directive and the fragment is the selector:
//
//	[code_todo](code:internal/engine.go#Engine.Refresh)
//
// Source paths are relative to the project root unless they start with ./
// or ../, in which case they are relative to the markdown file. Documents
// are read as CommonMark, so a destination containing spaces, such as a
// text selector, is wrapped in angle brackets:
//
//	[code_warning](<code:engine.go#/for _, j := range e.jobs/>)
package mdref

import (
	"bytes"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Link is one code reference found in a markdown file.
type Link struct {
	DocFile   string
	Line      int // 1-based
	Directive string
	Source    string
	Selector  string
}

// Doc is the parsed form of one markdown file.
type Doc struct {
	File  string
	Links []Link

	// Blocks maps a link line to the markdown block attached to it.
	Blocks map[int]string
}

const scheme = "code:"

// Parse extracts every code reference from content. docFile is the
// slash-separated path of the markdown file relative to the project root.
// Links inside code spans, fenced or indented code and raw HTML are not
// references.
func Parse(docFile string, content []byte) (*Doc, error) {
	doc := &Doc{File: docFile, Blocks: map[int]string{}}
	lines := splitLines(content)
	starts := lineStarts(content)

	var (
		boundary      = map[int]bool{} // 0-based lines that end a block
		linkLines     []int
		cursor, limit int // search window inside the current leaf block
	)
	root := goldmark.DefaultParser().Parse(text.NewReader(content))
	err := ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if n.Type() == ast.TypeBlock {
			if segs := n.Lines(); segs.Len() > 0 {
				cursor = segs.At(0).Start
				limit = segs.At(segs.Len() - 1).Stop
				if n.Kind() == ast.KindHeading {
					boundary[lineOf(starts, cursor)] = true
				}
			}
			return ast.WalkContinue, nil
		}
		link, ok := n.(*ast.Link)
		if !ok || !bytes.HasPrefix(link.Destination, []byte(scheme)) {
			return ast.WalkContinue, nil
		}

		var pos int
		pos, cursor = locateLink(content, link, cursor, limit)
		line := lineOf(starts, pos)
		dest := string(link.Destination[len(scheme):])
		target, selector, _ := strings.Cut(dest, "#")
		src, err := resolveSource(docFile, target)
		if err != nil {
			return ast.WalkStop, fmt.Errorf("mdref: %s:%d: %w", docFile, line+1, err)
		}
		doc.Links = append(doc.Links, Link{
			DocFile:   docFile,
			Line:      line + 1,
			Directive: strings.TrimSpace(plainText(link, content)),
			Source:    src,
			Selector:  strings.TrimSpace(selector),
		})
		if k := len(linkLines); k == 0 || linkLines[k-1] != line {
			linkLines = append(linkLines, line)
		}
		boundary[line] = true
		return ast.WalkSkipChildren, nil
	})
	if err != nil {
		return nil, err
	}

	ends := make([]int, 0, len(boundary))
	for l := range boundary {
		ends = append(ends, l)
	}
	sort.Ints(ends)
	for _, l := range linkLines {
		if l >= len(lines) {
			continue
		}
		end := len(lines)
		if i := sort.SearchInts(ends, l+1); i < len(ends) {
			end = ends[i]
		}
		doc.Blocks[l+1] = strings.TrimRight(strings.Join(lines[l:end], "\n"), "\n \t")
	}
	return doc, nil
}

// locateLink returns the offset of link in content and where the search
// for the next link of the same block starts. Links with text are placed
// by their first text segment, empty ones by their destination.
func locateLink(content []byte, link *ast.Link, cursor, limit int) (pos, next int) {
	if limit > len(content) || limit < cursor {
		limit = len(content)
	}
	from := cursor
	t := firstText(link)
	if t != nil && t.Segment.Start >= cursor {
		from = t.Segment.Start
	}
	i := bytes.Index(content[from:limit], link.Destination)
	switch {
	case i < 0:
		return from, from
	case t != nil:
		return from, from + i + len(link.Destination)
	default:
		return from + i, from + i + len(link.Destination)
	}
}

func firstText(n ast.Node) *ast.Text {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			return t
		}
		if t := firstText(c); t != nil {
			return t
		}
	}
	return nil
}

// plainText concatenates the text segments under n.
func plainText(n ast.Node, src []byte) string {
	var b strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			b.Write(t.Segment.Value(src))
			continue
		}
		b.WriteString(plainText(c, src))
	}
	return b.String()
}

func splitLines(content []byte) []string {
	if len(content) == 0 {
		return nil
	}
	lines := strings.Split(strings.TrimSuffix(string(content), "\n"), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

func lineStarts(content []byte) []int {
	starts := []int{0}
	for i, c := range content {
		if c == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// lineOf returns the 0-based line of a byte offset.
func lineOf(starts []int, off int) int {
	return sort.Search(len(starts), func(i int) bool { return starts[i] > off }) - 1
}

func resolveSource(docFile, target string) (string, error) {
	if target == "" {
		return "", fmt.Errorf("empty source path")
	}
	if strings.HasPrefix(target, "./") || strings.HasPrefix(target, "../") {
		target = path.Join(path.Dir(docFile), target)
	}
	target = path.Clean(strings.TrimPrefix(target, "/"))
	if target == ".." || strings.HasPrefix(target, "../") {
		return "", fmt.Errorf("source path %q escapes the project", target)
	}
	return target, nil
}
