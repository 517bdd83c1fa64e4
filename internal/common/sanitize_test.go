package common

import "testing"

func TestSanitizePagePath(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{"root", "/", "index"},
		{"empty", "", "index"},
		{"simple page", "/about", "about"},
		{"nested page", "/about/team", "about-team"},
		{"trailing slash", "/about/", "about"},
		{"deep nesting", "/docs/api/v2/reference", "docs-api-v2-reference"},
		{"query-like characters", "/search?q=term", "search_q_term"},
		{"dots replaced", "/page.html", "page_html"},
		{"unicode replaced", "/café", "caf_"},
		{"consecutive specials collapse", "/a//b..c", "a-b_c"},
		{"underscores kept", "/my_page", "my_page"},
		{"hyphens kept", "/my-page", "my-page"},
		{"all specials", "/???", "_"},
		{"mixed collapse", "/a/b/c?x=1&y=2", "a-b-c_x_1_y_2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizePagePath(tt.path); got != tt.want {
				t.Errorf("SanitizePagePath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}
