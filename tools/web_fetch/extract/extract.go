package extract

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/go-shiori/go-readability"
)

// Page is the readable part of an HTML document.
type Page struct {
	Title    string
	Markdown string
	HTMLHash string
}

// FromHTML runs readability over raw HTML and converts the article body to
// markdown, truncated to maxChars runes when maxChars > 0. When readability
// finds no article the whole document is converted.
func FromHTML(html, pageURL string, maxChars int) (Page, error) {
	sum := sha1.Sum([]byte(html))
	page := Page{HTMLHash: hex.EncodeToString(sum[:])}

	body := html
	article, err := readability.FromReader(strings.NewReader(html), mustParseURL(pageURL))
	if err == nil {
		page.Title = strings.TrimSpace(article.Title)
		if strings.TrimSpace(article.Content) != "" {
			body = article.Content
		}
	}
	md, err := htmltomarkdown.ConvertString(body)
	if err != nil {
		return page, fmt.Errorf("convert %s to markdown: %w", pageURL, err)
	}
	page.Markdown = Truncate(strings.TrimSpace(md), maxChars)
	return page, nil
}

// Truncate cuts s to at most max runes; max <= 0 disables truncation.
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		return &url.URL{}
	}
	return u
}
