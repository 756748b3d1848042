package research

import (
	"testing"
)

const sampleHTML = `
<html><body>
<div class="result results_links results_links_deep web-result">
  <a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2Fdoc%2F&amp;rut=abc">Go Documentation</a>
  <a class="result__snippet" href="https://go.dev/doc/">The official Go documentation.</a>
</div>
<div class="result results_links results_links_deep web-result">
  <a class="result__a" href="https://pkg.go.dev/">Go Packages</a>
  <a class="result__snippet" href="https://pkg.go.dev/">Package index for Go.</a>
</div>
</body></html>`

func TestParseDuckDuckGoResults(t *testing.T) {
	results, err := parseDuckDuckGoResults(sampleHTML, 10)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].Title != "Go Documentation" {
		t.Errorf("title = %q", results[0].Title)
	}
	if results[0].URL != "https://go.dev/doc/" {
		t.Errorf("redirect URL not unwrapped: %q", results[0].URL)
	}
	if results[1].URL != "https://pkg.go.dev/" {
		t.Errorf("direct URL mangled: %q", results[1].URL)
	}
	if results[0].Snippet == "" {
		t.Error("snippet missing")
	}
}

func TestParseDuckDuckGoResultsLimit(t *testing.T) {
	results, err := parseDuckDuckGoResults(sampleHTML, 1)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("results = %d, want 1", len(results))
	}
}

func TestParseDuckDuckGoResultsEmpty(t *testing.T) {
	results, err := parseDuckDuckGoResults("<html><body></body></html>", 10)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("results = %d, want 0", len(results))
	}
}

func TestWebSearchToolSchema(t *testing.T) {
	tool := WebSearchTool()
	if tool.Name != "search_web" {
		t.Errorf("name = %q", tool.Name)
	}
	if tool.Mutating {
		t.Error("search_web must not be mutating")
	}
	if len(tool.Schema.Required) != 1 || tool.Schema.Required[0] != "query" {
		t.Errorf("required = %v", tool.Schema.Required)
	}
}
