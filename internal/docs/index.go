// ABOUTME: Markdown documentation index split into heading sections with goldmark
// ABOUTME: Collections are directories: "common" plus one per application

package docs

import (
	"bytes"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// CommonCollection is searched for every application.
const CommonCollection = "common"

// Section is one heading-delimited chunk of a document.
type Section struct {
	Title    string
	Section  string
	Citation string
	Text     string
	terms    map[string]int
}

// Hit is a ranked search result.
type Hit struct {
	Title    string  `json:"title"`
	Section  string  `json:"section"`
	Snippet  string  `json:"snippet"`
	Citation string  `json:"citation"`
	Score    float64 `json:"score"`
}

// maxSnippet is the longest snippet returned, in bytes.
const maxSnippet = 500

// Index holds sections per collection. It is immutable after Load.
type Index struct {
	collections map[string][]Section
}

// Load walks root and indexes every .md file. The first directory level names the
// collection; files directly under root belong to the common collection. A missing
// root yields an empty index.
func Load(root string, logger *slog.Logger) (*Index, error) {
	idx := &Index{collections: make(map[string][]Section)}
	if root == "" {
		return idx, nil
	}
	if _, err := os.Stat(root); os.IsNotExist(err) {
		logger.Warn("docs directory not found, docs search will return no results", "dir", root)
		return idx, nil
	}

	md := goldmark.New()
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".md") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		collection := CommonCollection
		if parts := strings.Split(filepath.ToSlash(rel), "/"); len(parts) > 1 {
			collection = parts[0]
		}
		src, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", rel, err)
		}
		sections := parseSections(md, src, filepath.ToSlash(rel))
		idx.collections[collection] = append(idx.collections[collection], sections...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("indexing docs: %w", err)
	}

	total := 0
	for _, s := range idx.collections {
		total += len(s)
	}
	logger.Info("docs indexed", "dir", root, "collections", len(idx.collections), "sections", total)
	return idx, nil
}

// FromMarkdown builds an index from in-memory documents keyed by collection then filename.
func FromMarkdown(docs map[string]map[string]string) *Index {
	md := goldmark.New()
	idx := &Index{collections: make(map[string][]Section)}
	for collection, files := range docs {
		names := make([]string, 0, len(files))
		for name := range files {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			idx.collections[collection] = append(idx.collections[collection], parseSections(md, []byte(files[name]), name)...)
		}
	}
	return idx
}

func parseSections(md goldmark.Markdown, src []byte, citation string) []Section {
	doc := md.Parser().Parse(text.NewReader(src))

	title := strings.TrimSuffix(filepath.Base(citation), filepath.Ext(citation))
	var sections []Section
	current := Section{Title: title, Section: "Overview", Citation: citation}
	var body strings.Builder

	flush := func() {
		current.Text = strings.TrimSpace(body.String())
		if current.Text != "" {
			current.terms = termCounts(current.Section + " " + current.Text)
			sections = append(sections, current)
		}
		body.Reset()
	}

	titleSet := false
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if h, ok := n.(*ast.Heading); ok {
			heading := strings.TrimSpace(inlineText(h, src))
			if h.Level == 1 && !titleSet {
				title = heading
				current.Title = heading
				titleSet = true
				continue
			}
			flush()
			current = Section{Title: title, Section: heading, Citation: citation}
			continue
		}
		body.WriteString(blockText(n, src))
		body.WriteString("\n")
	}
	flush()
	return sections
}

// inlineText concatenates the text leaves below n.
func inlineText(n ast.Node, src []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := child.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}

// blockText renders a block as plain text. Code blocks keep their raw lines.
func blockText(n ast.Node, src []byte) string {
	switch n.Kind() {
	case ast.KindFencedCodeBlock, ast.KindCodeBlock:
		var buf bytes.Buffer
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(src))
		}
		return buf.String()
	default:
		return inlineText(n, src)
	}
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func termCounts(s string) map[string]int {
	counts := make(map[string]int)
	for _, tok := range tokenize(s) {
		counts[tok]++
	}
	return counts
}

// Search ranks sections in the common collection and app's collection against query.
func (idx *Index) Search(query, app string, limit int) []Hit {
	terms := tokenize(query)
	if len(terms) == 0 || limit <= 0 {
		return []Hit{}
	}

	var candidates []Section
	candidates = append(candidates, idx.collections[CommonCollection]...)
	if app != "" && app != CommonCollection {
		candidates = append(candidates, idx.collections[app]...)
	}

	hits := make([]Hit, 0)
	for _, s := range candidates {
		score := 0.0
		matched := 0
		for _, term := range terms {
			if c := s.terms[term]; c > 0 {
				matched++
				score += 1 + float64(c-1)*0.1
			}
		}
		if matched == 0 {
			continue
		}
		// Rewards sections matching more distinct terms.
		score *= float64(matched) / float64(len(terms))
		hits = append(hits, Hit{
			Title:    s.Title,
			Section:  s.Section,
			Snippet:  snippet(s.Text),
			Citation: s.Citation,
			Score:    score,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

func snippet(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= maxSnippet {
		return s
	}
	cut := maxSnippet
	for cut > 0 && !utf8Start(s[cut]) {
		cut--
	}
	return s[:cut]
}

func utf8Start(b byte) bool { return b&0xC0 != 0x80 }

// Collections returns the indexed collection names.
func (idx *Index) Collections() []string {
	out := make([]string, 0, len(idx.collections))
	for name := range idx.collections {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
