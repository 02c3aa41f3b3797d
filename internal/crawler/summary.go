package crawler

import (
	"net/url"
	"strings"

	"github.com/sheenhq/sitesmith/internal/domain"
	"golang.org/x/net/html"
)

const maxHeadings = 10

// parsedPage is the result of parsing one document: its condensed summary
// plus the outbound links and asset URLs found in it.
type parsedPage struct {
	Summary domain.PageSummary
	Links   []string
	Assets  []string
}

// parseDocument extracts a page summary from HTML. Links and asset URLs are
// resolved against the page URL; fragments are stripped so the same page is
// not visited twice.
func parseDocument(pageURL *url.URL, body string) *parsedPage {
	page := &parsedPage{
		Summary: domain.PageSummary{URL: pageURL.String()},
	}

	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		// Partial or broken markup still yields whatever was parsed.
		return page
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if page.Summary.Title == "" {
					page.Summary.Title = strings.TrimSpace(textContent(n))
				}
			case "h1", "h2", "h3":
				if text := strings.TrimSpace(textContent(n)); text != "" && len(page.Summary.Headings) < maxHeadings {
					page.Summary.Headings = append(page.Summary.Headings, text)
				}
			case "a":
				page.Summary.LinkCount++
				if href := attrValue(n, "href"); href != "" {
					if resolved := resolveRef(pageURL, href); resolved != "" {
						page.Links = append(page.Links, resolved)
					}
				}
			case "img":
				page.Summary.ImageCount++
				if src := attrValue(n, "src"); src != "" {
					if resolved := resolveRef(pageURL, src); resolved != "" {
						page.Assets = append(page.Assets, resolved)
					}
				}
			case "form":
				page.Summary.FormCount++
			case "link":
				rel := strings.ToLower(attrValue(n, "rel"))
				if rel == "stylesheet" || rel == "icon" {
					if href := attrValue(n, "href"); href != "" {
						if resolved := resolveRef(pageURL, href); resolved != "" {
							page.Assets = append(page.Assets, resolved)
						}
					}
				}
			case "script":
				if src := attrValue(n, "src"); src != "" {
					if resolved := resolveRef(pageURL, src); resolved != "" {
						page.Assets = append(page.Assets, resolved)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return page
}

// textContent concatenates the text nodes below n.
func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// attrValue returns the value of the named attribute, or "".
func attrValue(n *html.Node, name string) string {
	for _, attr := range n.Attr {
		if strings.EqualFold(attr.Key, name) {
			return strings.TrimSpace(attr.Val)
		}
	}
	return ""
}

// resolveRef resolves a reference against the page URL and strips the
// fragment. Non-HTTP references (mailto:, javascript:, data:) return "".
func resolveRef(base *url.URL, ref string) string {
	parsed, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(parsed)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	resolved.Fragment = ""
	return resolved.String()
}
