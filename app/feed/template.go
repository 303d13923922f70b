package feed

import "strings"

// DefaultTemplate is used when a feed source does not configure one.
const DefaultTemplate = "{title}\n\n{description}"

// RenderTemplate expands {title}, {description} and {link} placeholders
// against the given entry. Rendering happens at scheduling time, so a
// later template change never rewrites already-materialized jobs.
func RenderTemplate(template string, entry Entry) string {
	if template == "" {
		template = DefaultTemplate
	}

	replacer := strings.NewReplacer(
		"{title}", entry.Title,
		"{description}", entry.Description,
		"{link}", entry.Link,
	)

	return strings.TrimSpace(replacer.Replace(template))
}
