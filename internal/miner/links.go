package miner

import (
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// linkAttrs maps the elements that reference other resources to the
// attribute holding the reference.
var linkAttrs = map[string]string{
	"a":      "href",
	"link":   "href",
	"area":   "href",
	"script": "src",
	"img":    "src",
	"iframe": "src",
	"source": "src",
	"form":   "action",
}

// ExtractLinks returns the absolute http(s) URLs referenced by an HTML
// document, in document order and without duplicates. Relative references
// are resolved against base.
func ExtractLinks(base *url.URL, content io.Reader) ([]string, error) {
	doc, err := html.Parse(content)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var links []string

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if key, ok := linkAttrs[n.Data]; ok {
				if link := resolveURL(base, getAttr(n, key)); link != "" && !seen[link] {
					seen[link] = true
					links = append(links, link)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return links, nil
}

// resolveURL resolves href against base. Non-http(s) references and
// fragments yield "".
func resolveURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}

	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ""
	}
	u.Fragment = ""
	return u.String()
}

// getAttr retrieves an attribute value from an HTML node.
func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
