package extract

import (
	"strings"
	"testing"
)

const article = `<html><head><title>Paris Weather Notes</title></head><body>
<nav>Home | About</nav>
<article>
<h1>Paris Weather Notes</h1>
<p>Paris has a temperate oceanic climate with mild winters and warm summers. Rain is spread fairly evenly through the year.</p>
<p>Spring arrives in March and the city fills with blossoms along the Seine, while autumn brings crisp mornings and golden light.</p>
<ul><li>Average July high: 25C</li><li>Average January high: 7C</li></ul>
</article>
</body></html>`

func TestFromHTML(t *testing.T) {
	page, err := FromHTML(article, "https://example.com/paris", 0)
	if err != nil {
		t.Fatalf("FromHTML: %v", err)
	}
	if page.Title == "" {
		t.Fatalf("expected a title")
	}
	if !strings.Contains(page.Markdown, "temperate oceanic climate") {
		t.Fatalf("markdown missing body text:\n%s", page.Markdown)
	}
	if strings.Contains(page.Markdown, "<p>") {
		t.Fatalf("markdown still contains html:\n%s", page.Markdown)
	}
	if len(page.HTMLHash) != 40 {
		t.Fatalf("unexpected hash %q", page.HTMLHash)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("héllo", 2); got != "hé" {
		t.Fatalf("unexpected truncation %q", got)
	}
	if got := Truncate("abc", 0); got != "abc" {
		t.Fatalf("zero max should not truncate, got %q", got)
	}
}
