package channel

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTruncateContentIdempotent(t *testing.T) {
	cases := []struct {
		name string
		text string
		max  int
	}{
		{"short text", "hello world", 300},
		{"exact limit", strings.Repeat("a", 300), 300},
		{"over limit", strings.Repeat("b", 500), 300},
		{"multibyte over limit", strings.Repeat("é", 500), 300},
		{"empty", "", 300},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			once := truncateContent(tc.text, tc.max)
			twice := truncateContent(once, tc.max)

			assert.Equal(t, once, twice, "truncation must be idempotent")
			assert.LessOrEqual(t, contentLength(once), tc.max)
		})
	}
}

func TestTruncateContentAppendsEllipsis(t *testing.T) {
	result := truncateContent(strings.Repeat("x", 400), 300)

	assert.True(t, strings.HasSuffix(result, ellipsis))
	assert.Equal(t, 300, contentLength(result))
}

func TestContentLengthCountsRunes(t *testing.T) {
	assert.Equal(t, 5, contentLength("héllo"))
	assert.Equal(t, 3, contentLength("日本語"))
}

func TestValidateMediaURL(t *testing.T) {
	valid := []string{
		"https://cdn.example.com/image.jpg",
		"http://images.example.org/photo.png",
	}
	for _, url := range valid {
		assert.NoError(t, validateMediaURL(url), url)
	}

	invalid := []string{
		"ftp://example.com/image.jpg",
		"https://localhost/image.jpg",
		"https://127.0.0.1/image.jpg",
		"https://192.168.1.10/image.jpg",
		"https://10.0.0.5/photo.png",
		"file:///etc/passwd",
		"",
	}
	for _, url := range invalid {
		assert.Error(t, validateMediaURL(url), url)
	}
}

func TestValidateCommonLengthLimit(t *testing.T) {
	desc := Descriptor{ID: "test", Name: "Test", MaxContentLength: 100, MaxMediaCount: 2, SupportsMedia: true}

	over := validateCommon(ContentItem{Body: strings.Repeat("a", 101)}, desc, 0)
	if over.IsValid {
		t.Fatal("content over the limit should be invalid")
	}
	assert.Contains(t, strings.Join(over.Errors, " "), "limit of 100")

	atLimit := validateCommon(ContentItem{Body: strings.Repeat("a", 100)}, desc, 0)
	assert.True(t, atLimit.IsValid, "content at the limit should pass")
}

func TestValidateCommonAppendedLength(t *testing.T) {
	desc := Descriptor{ID: "test", Name: "Test", MaxContentLength: 100}

	// 95 characters of body plus 10 appended characters exceeds the limit.
	result := validateCommon(ContentItem{Body: strings.Repeat("a", 95)}, desc, 10)
	assert.False(t, result.IsValid)
}

func TestValidateCommonEmptyBody(t *testing.T) {
	desc := Descriptor{ID: "test", Name: "Test", MaxContentLength: 100}

	result := validateCommon(ContentItem{Body: "   "}, desc, 0)
	assert.False(t, result.IsValid)
	assert.Contains(t, result.Errors, "content is empty")
}

func TestValidateCommonMediaCount(t *testing.T) {
	desc := Descriptor{ID: "test", Name: "Test", MaxContentLength: 100, MaxMediaCount: 1, SupportsMedia: true}

	result := validateCommon(ContentItem{
		Body: "ok",
		Media: []Media{
			{URL: "https://cdn.example.com/a.jpg"},
			{URL: "https://cdn.example.com/b.jpg"},
		},
	}, desc, 0)

	assert.False(t, result.IsValid)
}

func TestValidateCommonSchedulingWarning(t *testing.T) {
	desc := Descriptor{ID: "test", Name: "Test", MaxContentLength: 100, SupportsScheduling: false}
	when := time.Now().Add(24 * time.Hour)

	result := validateCommon(ContentItem{Body: "ok", ScheduledFor: &when}, desc, 0)

	assert.True(t, result.IsValid, "missing native scheduling is a warning, not an error")
	assert.NotEmpty(t, result.Warnings)
}

func TestCredentialExpired(t *testing.T) {
	assert.True(t, (*Credential)(nil).Expired())
	assert.True(t, (&Credential{}).Expired())

	soon := time.Now().Add(2 * time.Minute)
	assert.True(t, (&Credential{AccessToken: "t", ExpiresAt: &soon}).Expired(),
		"token expiring within the skew window counts as expired")

	later := time.Now().Add(time.Hour)
	assert.False(t, (&Credential{AccessToken: "t", ExpiresAt: &later}).Expired())

	assert.False(t, (&Credential{AccessToken: "t"}).Expired(), "no expiry means usable")
}
