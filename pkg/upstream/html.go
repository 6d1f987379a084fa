package upstream

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// extractTitle resolves an event's display name from its page: the first
// h2, then the <title> without the site prefix, then "Event <id>".
func extractTitle(doc *html.Node, eventID string) string {
	var title string
	if h2 := findFirst(doc, atom.H2); h2 != nil {
		title = textContent(h2)
	}

	if title == "" || strings.HasPrefix(title, "Event ") {
		if t := findFirst(doc, atom.Title); t != nil {
			pageTitle := textContent(t)
			if strings.HasPrefix(strings.ToLower(pageTitle), "zwiftpower") {
				rest := strings.TrimSpace(pageTitle[len("zwiftpower"):])
				rest = strings.TrimSpace(strings.TrimPrefix(rest, "-"))
				if rest != "" && !strings.HasPrefix(strings.ToLower(rest), "login") {
					title = rest
				}
			}
		}
	}

	if title == "" {
		title = "Event " + eventID
	}
	return title
}

func findFirst(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, a); found != nil {
			return found
		}
	}
	return nil
}

func findAll(n *html.Node, a atom.Atom, out []*html.Node) []*html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		out = append(out, n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = findAll(c, a, out)
	}
	return out
}

// textContent returns the whitespace-collapsed text below n.
func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
