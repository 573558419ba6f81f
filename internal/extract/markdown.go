package extract

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var blankLines = regexp.MustCompile(`\n{3,}`)

// ToMarkdown renders the selection's DOM as Markdown. Relative links and
// image sources are resolved against base.
func ToMarkdown(sel *goquery.Selection, base *url.URL) string {
	w := &mdWriter{base: base}
	for _, n := range sel.Nodes {
		w.children(n)
	}
	out := blankLines.ReplaceAllString(w.b.String(), "\n\n")
	return strings.TrimSpace(out) + "\n"
}

type mdWriter struct {
	b     strings.Builder
	base  *url.URL
	lists []listState
}

type listState struct {
	ordered bool
	index   int
}

func (w *mdWriter) children(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.node(c)
	}
}

func (w *mdWriter) node(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		w.text(n.Data)
		return
	case html.ElementNode:
	default:
		return
	}

	switch n.DataAtom {
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		level := int(n.Data[1] - '0')
		w.block()
		w.b.WriteString(strings.Repeat("#", level) + " " + inline(w, n) + "\n\n")
	case atom.P:
		w.block()
		w.b.WriteString(inline(w, n) + "\n\n")
	case atom.Br:
		w.b.WriteString("\n")
	case atom.Hr:
		w.block()
		w.b.WriteString("---\n\n")
	case atom.Pre:
		w.block()
		w.b.WriteString("```" + codeLanguage(n) + "\n")
		w.b.WriteString(strings.TrimRight(textContent(n), "\n") + "\n```\n\n")
	case atom.Code:
		w.b.WriteString("`" + textContent(n) + "`")
	case atom.Strong, atom.B:
		if t := inline(w, n); t != "" {
			w.b.WriteString("**" + t + "**")
		}
	case atom.Em, atom.I:
		if t := inline(w, n); t != "" {
			w.b.WriteString("*" + t + "*")
		}
	case atom.A:
		w.link(n)
	case atom.Img:
		w.image(n)
	case atom.Ul, atom.Ol:
		w.list(n)
	case atom.Li:
		w.item(n)
	case atom.Blockquote:
		w.block()
		body := strings.TrimSpace(ToMarkdown(goquery.NewDocumentFromNode(n).Selection, w.base))
		for _, line := range strings.Split(body, "\n") {
			w.b.WriteString("> " + line + "\n")
		}
		w.b.WriteString("\n")
	case atom.Table:
		w.table(n)
	case atom.Script, atom.Style, atom.Noscript, atom.Template:
	default:
		w.children(n)
		if isBlock(n.DataAtom) {
			w.block()
		}
	}
}

func (w *mdWriter) text(data string) {
	collapsed := strings.Join(strings.Fields(data), " ")
	if collapsed == "" {
		if strings.TrimSpace(data) == "" && data != "" && !w.atLineStart() {
			w.b.WriteString(" ")
		}
		return
	}
	if startsWithSpace(data) && !w.atLineStart() {
		collapsed = " " + collapsed
	}
	if endsWithSpace(data) {
		collapsed += " "
	}
	w.b.WriteString(collapsed)
}

func (w *mdWriter) link(n *html.Node) {
	text := strings.TrimSpace(inline(w, n))
	href := strings.TrimSpace(attr(n, "href"))
	if text == "" {
		return
	}
	if href == "" || strings.HasPrefix(href, "javascript:") {
		w.b.WriteString(text)
		return
	}
	w.b.WriteString("[" + text + "](" + w.resolve(href) + ")")
}

func (w *mdWriter) image(n *html.Node) {
	src := strings.TrimSpace(attr(n, "src"))
	if src == "" {
		return
	}
	w.b.WriteString("![" + attr(n, "alt") + "](" + w.resolve(src) + ")")
}

func (w *mdWriter) list(n *html.Node) {
	w.block()
	w.lists = append(w.lists, listState{ordered: n.DataAtom == atom.Ol})
	w.children(n)
	w.lists = w.lists[:len(w.lists)-1]
	if len(w.lists) == 0 {
		w.b.WriteString("\n")
	}
}

func (w *mdWriter) item(n *html.Node) {
	if len(w.lists) == 0 {
		w.children(n)
		return
	}
	state := &w.lists[len(w.lists)-1]
	state.index++
	marker := "- "
	if state.ordered {
		marker = strconv.Itoa(state.index) + ". "
	}
	if !w.atLineStart() {
		w.b.WriteString("\n")
	}
	w.b.WriteString(strings.Repeat("  ", len(w.lists)-1) + marker)

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.DataAtom == atom.Ul || c.DataAtom == atom.Ol) {
			w.b.WriteString("\n")
			w.lists = append(w.lists, listState{ordered: c.DataAtom == atom.Ol})
			w.children(c)
			w.lists = w.lists[:len(w.lists)-1]
			continue
		}
		if c.Type == html.ElementNode && c.DataAtom == atom.P {
			w.b.WriteString(inline(w, c))
			continue
		}
		w.node(c)
	}
	if !w.atLineStart() {
		w.b.WriteString("\n")
	}
}

func (w *mdWriter) table(n *html.Node) {
	w.block()
	var rows [][]string
	goquery.NewDocumentFromNode(n).Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var cells []string
		tr.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, strings.ReplaceAll(collapse(cell.Text()), "|", `\|`))
		})
		if len(cells) > 0 {
			rows = append(rows, cells)
		}
	})
	if len(rows) == 0 {
		return
	}
	width := 0
	for _, r := range rows {
		width = max(width, len(r))
	}
	for i, r := range rows {
		for len(r) < width {
			r = append(r, "")
		}
		w.b.WriteString("| " + strings.Join(r, " | ") + " |\n")
		if i == 0 {
			w.b.WriteString("|" + strings.Repeat(" --- |", width) + "\n")
		}
	}
	w.b.WriteString("\n")
}

func (w *mdWriter) resolve(ref string) string {
	if w.base == nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return w.base.ResolveReference(u).String()
}

func (w *mdWriter) block() {
	s := w.b.String()
	if s == "" || strings.HasSuffix(s, "\n\n") {
		return
	}
	if strings.HasSuffix(s, "\n") {
		w.b.WriteString("\n")
		return
	}
	w.b.WriteString("\n\n")
}

func (w *mdWriter) atLineStart() bool {
	s := w.b.String()
	return s == "" || strings.HasSuffix(s, "\n") || strings.HasSuffix(s, " ")
}

// inline renders n's children into a standalone single-line string.
func inline(parent *mdWriter, n *html.Node) string {
	w := &mdWriter{base: parent.base}
	w.children(n)
	return strings.Join(strings.Fields(w.b.String()), " ")
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func codeLanguage(pre *html.Node) string {
	for _, n := range []*html.Node{pre, pre.FirstChild} {
		if n == nil || n.Type != html.ElementNode {
			continue
		}
		for _, class := range strings.Fields(attr(n, "class")) {
			for _, prefix := range []string{"language-", "lang-"} {
				if strings.HasPrefix(class, prefix) {
					return strings.TrimPrefix(class, prefix)
				}
			}
		}
	}
	return ""
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func isBlock(a atom.Atom) bool {
	switch a {
	case atom.Div, atom.Section, atom.Article, atom.Main, atom.Dl, atom.Dt, atom.Dd,
		atom.Figure, atom.Figcaption, atom.Details, atom.Summary:
		return true
	}
	return false
}

func startsWithSpace(s string) bool {
	return s != "" && strings.ContainsRune(" \t\n\r", rune(s[0]))
}

func endsWithSpace(s string) bool {
	return s != "" && strings.ContainsRune(" \t\n\r", rune(s[len(s)-1]))
}
