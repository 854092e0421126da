package docpipe

import (
	"bytes"
	"os"
	"strings"
	"sync"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	htmlOnce   sync.Once
	htmlPolicy *bluemonday.Policy
	mdConv     *converter.Converter
)

func htmlTools() (*bluemonday.Policy, *converter.Converter) {
	htmlOnce.Do(func() {
		htmlPolicy = bluemonday.UGCPolicy()
		mdConv = converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		)
	})
	return htmlPolicy, mdConv
}

// HTMLToText returns the <title> and a Markdown rendering of the page body.
// Scripts, styles and event handlers are removed before conversion. Links
// are resolved against baseURL when it is non-empty.
func HTMLToText(raw []byte, baseURL string) (title, text string, err error) {
	doc, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return "", "", err
	}
	title = findTitle(doc)

	policy, conv := htmlTools()
	clean := policy.SanitizeBytes(raw)

	var md string
	if baseURL != "" {
		md, err = conv.ConvertString(string(clean), converter.WithDomain(baseURL))
	} else {
		md, err = conv.ConvertString(string(clean))
	}
	if err != nil {
		return title, "", err
	}
	return title, strings.TrimSpace(md), nil
}

func extractHTMLFile(path string) (string, []Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, err
	}
	title, text, err := HTMLToText(data, "")
	if err != nil {
		return "", nil, err
	}
	return title, singlePage(text), nil
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.DataAtom == atom.Title {
		var b strings.Builder
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				b.WriteString(c.Data)
			}
		}
		return strings.Join(strings.Fields(b.String()), " ")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}
