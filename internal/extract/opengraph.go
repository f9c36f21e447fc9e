package extract

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

type OpenGraph struct {
	Title       string
	Description string
	SiteName    string
	Type        string
	Images      []string
	Video       string
}

// ParseOpenGraph reads og:* (and twitter:* as a fallback) meta tags. Multiple
// og:image tags are kept in document order.
func ParseOpenGraph(body []byte) OpenGraph {
	var og OpenGraph
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return og
	}

	var twitterImage, twitterTitle, twitterDesc, docTitle string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch strings.ToLower(n.Data) {
			case "meta":
				key := attrValue(n, "property")
				if key == "" {
					key = attrValue(n, "name")
				}
				content := attrRaw(n, "content")
				switch strings.ToLower(key) {
				case "og:title":
					og.Title = content
				case "og:description":
					og.Description = content
				case "og:site_name":
					og.SiteName = content
				case "og:type":
					og.Type = content
				case "og:image", "og:image:url", "og:image:secure_url":
					og.Images = append(og.Images, content)
				case "og:video", "og:video:url", "og:video:secure_url":
					if og.Video == "" {
						og.Video = content
					}
				case "twitter:image", "twitter:image:src":
					twitterImage = content
				case "twitter:title":
					twitterTitle = content
				case "twitter:description":
					twitterDesc = content
				}
			case "title":
				if n.FirstChild != nil && docTitle == "" {
					docTitle = n.FirstChild.Data
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if len(og.Images) == 0 && twitterImage != "" {
		og.Images = []string{twitterImage}
	}
	if og.Title == "" {
		og.Title = twitterTitle
	}
	if og.Title == "" {
		og.Title = strings.TrimSpace(docTitle)
	}
	if og.Description == "" {
		og.Description = twitterDesc
	}
	return og
}

func (og OpenGraph) result() *Result {
	return &Result{
		Images:  append([]string(nil), og.Images...),
		Title:   og.Title,
		Caption: og.Description,
	}
}

func attrValue(n *html.Node, key string) string {
	return strings.ToLower(strings.TrimSpace(attrRaw(n, key)))
}

func attrRaw(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}
