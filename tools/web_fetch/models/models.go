package models

// Result is a fetched page reduced to markdown.
type Result struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	Markdown string `json:"markdown"`
	HTMLHash string `json:"html_hash,omitempty"`
	Status   int    `json:"status"`
	RenderMS int    `json:"render_ms"`
	Cached   bool   `json:"cached,omitempty"`
}
