package channel

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const ellipsis = "…"

// normalizeContent applies NFC normalization and trims surrounding
// whitespace so length accounting matches what providers count.
func normalizeContent(text string) string {
	return strings.TrimSpace(norm.NFC.String(text))
}

// truncateContent cuts text to at most max characters, replacing the tail
// with an ellipsis when trimming. Idempotent: a string that already fits
// passes through unchanged, so applying twice equals applying once.
func truncateContent(text string, max int) string {
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}

	runes := []rune(text)
	truncated := strings.TrimRight(string(runes[:max-1]), " \t\n")
	return truncated + ellipsis
}

// contentLength counts characters the way publishing APIs do, by rune
// rather than byte.
func contentLength(text string) int {
	return utf8.RuneCountInString(text)
}

// validateMediaURL rejects media locations an external channel cannot
// fetch: non-HTTP schemes, loopback, link-local, and private addresses.
func validateMediaURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid media URL: %s", rawURL)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("media URL must use http or https: %s", rawURL)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("media URL has no host: %s", rawURL)
	}

	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("media URL is not publicly resolvable: %s", rawURL)
	}

	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
			return fmt.Errorf("media URL is not publicly resolvable: %s", rawURL)
		}
	}

	return nil
}

// validateCommon performs the checks every adapter runs before its
// channel-specific ones: non-empty body, length against the descriptor
// limit (plus any text the adapter will append), media count, media URL
// reachability, and the native-scheduling fallback warning.
func validateCommon(item ContentItem, desc Descriptor, appendedLength int) ValidationResult {
	result := ValidationResult{IsValid: true}

	body := normalizeContent(item.Body)
	if body == "" {
		result.IsValid = false
		result.Errors = append(result.Errors, "content is empty")
	}

	total := contentLength(body) + appendedLength
	if total > desc.MaxContentLength {
		result.IsValid = false
		result.Errors = append(result.Errors,
			fmt.Sprintf("content length %d exceeds %s limit of %d characters", total, desc.Name, desc.MaxContentLength))
	}

	if len(item.Media) > 0 {
		if !desc.SupportsMedia {
			result.IsValid = false
			result.Errors = append(result.Errors, fmt.Sprintf("%s does not support media attachments", desc.Name))
		} else if len(item.Media) > desc.MaxMediaCount {
			result.IsValid = false
			result.Errors = append(result.Errors,
				fmt.Sprintf("media count %d exceeds %s limit of %d", len(item.Media), desc.Name, desc.MaxMediaCount))
		}

		for _, media := range item.Media {
			if err := validateMediaURL(media.URL); err != nil {
				result.IsValid = false
				result.Errors = append(result.Errors, err.Error())
			}
		}
	}

	if item.ScheduledFor != nil && !desc.SupportsScheduling {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("%s has no native scheduling; the post will be published immediately on dispatch", desc.Name))
	}

	return result
}
