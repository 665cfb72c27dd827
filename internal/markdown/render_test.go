package markdown

import (
	"strings"
	"testing"
)

func TestRender(t *testing.T) {
	cases := []struct {
		name     string
		source   string
		contains []string
		absent   []string
	}{
		{
			name:     "plain text becomes a paragraph",
			source:   "Soft, breathable, and perfect for everyday wear.",
			contains: []string{"<p>Soft, breathable, and perfect for everyday wear.</p>"},
		},
		{
			name:     "emphasis",
			source:   "Made from **100% organic** cotton",
			contains: []string{"<strong>100% organic</strong>"},
		},
		{
			name:     "links get nofollow",
			source:   "[care guide](https://example.com/care)",
			contains: []string{`href="https://example.com/care"`, "nofollow"},
		},
		{
			name:   "script is removed",
			source: "hello <script>alert(1)</script>",
			absent: []string{"<script", "alert(1)</script>"},
		},
		{
			name:   "javascript links are removed",
			source: "[x](javascript:alert(1))",
			absent: []string{"javascript:"},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got, err := Render(tc.source)
			if err != nil {
				t.Fatalf("Render returned error: %v", err)
			}
			for _, want := range tc.contains {
				if !strings.Contains(got, want) {
					t.Fatalf("expected %q in %q", want, got)
				}
			}
			for _, unwanted := range tc.absent {
				if strings.Contains(got, unwanted) {
					t.Fatalf("did not expect %q in %q", unwanted, got)
				}
			}
		})
	}
}

func TestRenderEmpty(t *testing.T) {
	got, err := Render("   ")
	if err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	if got != "" {
		t.Fatalf("expected empty output, got %q", got)
	}
}
