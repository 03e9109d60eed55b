package choir

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// ContentTool is the registry function used to fetch linked pages.
const ContentTool = "website_to_md"

var urlPattern = regexp.MustCompile(`https?://[^\s]+`)

// ExtractURLs returns the distinct URLs in text, in first-seen order.
func ExtractURLs(text string) []string {
	matches := urlPattern.FindAllString(text, -1)
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

// enrich appends fetched page content for every URL in the query. Fetch
// failures are logged and skipped.
func (s *Service) enrich(ctx context.Context, query string) string {
	urls := ExtractURLs(query)
	if len(urls) == 0 {
		return query
	}
	if _, ok := s.registry.Get(ContentTool); !ok {
		s.logger.WithField("urls", len(urls)).Warn("content tool not registered; skipping enrichment")
		return query
	}

	var b strings.Builder
	b.WriteString(query)
	for _, u := range urls {
		out, err := s.registry.Invoke(ctx, ContentTool, map[string]any{"url": u})
		if err != nil {
			s.logger.WithError(err).WithField("url", u).Warn("failed to fetch url content")
			continue
		}
		markdown, ok := markdownOf(out)
		if !ok {
			s.logger.WithField("url", u).Warn("content tool returned no markdown")
			continue
		}
		fmt.Fprintf(&b, "\n\n--- Content from %s ---\n%s", u, markdown)
	}
	return b.String()
}

func markdownOf(v any) (string, bool) {
	switch m := v.(type) {
	case map[string]any:
		s, ok := m["markdown"].(string)
		return s, ok
	case map[string]string:
		s, ok := m["markdown"]
		return s, ok
	default:
		return "", false
	}
}
