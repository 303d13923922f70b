package feed

import "testing"

func TestRenderTemplate(t *testing.T) {
	entry := Entry{
		Title:       "Five stars in Springfield",
		Description: "A happy customer story.",
		Link:        "https://example.com/posts/1",
	}

	tests := []struct {
		name     string
		template string
		expected string
	}{
		{
			name:     "all placeholders",
			template: "{title}\n{description}\n{link}",
			expected: "Five stars in Springfield\nA happy customer story.\nhttps://example.com/posts/1",
		},
		{
			name:     "default template when empty",
			template: "",
			expected: "Five stars in Springfield\n\nA happy customer story.",
		},
		{
			name:     "literal text preserved",
			template: "New post: {title}",
			expected: "New post: Five stars in Springfield",
		},
		{
			name:     "repeated placeholder",
			template: "{link} {link}",
			expected: "https://example.com/posts/1 https://example.com/posts/1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RenderTemplate(tt.template, entry)
			if got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestRenderTemplateTrimsWhitespace(t *testing.T) {
	entry := Entry{Title: "Title only"}

	got := RenderTemplate("", entry)
	if got != "Title only" {
		t.Errorf("Expected trailing whitespace trimmed, got %q", got)
	}
}
