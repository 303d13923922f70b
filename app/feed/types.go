package feed

import "time"

// Metadata describes the upstream feed itself.
type Metadata struct {
	Title       string
	Link        string
	Description string
	Language    string
	ImageURL    string
	PublishedAt *time.Time
}

// Entry is one normalized feed entry as parsed from the wire. The GUID
// falls back to the entry link when the feed omits one.
type Entry struct {
	GUID        string
	Title       string
	Description string
	Link        string
	ImageURL    string
	PublishedAt *time.Time
}

// PollResult summarizes a single poll run for one feed source.
type PollResult struct {
	Discovered int      `json:"discovered"`
	Scheduled  int      `json:"scheduled"`
	Skipped    int      `json:"skipped"`
	Errors     []string `json:"errors"`
}

// Seed is a feed definition loaded from a YAML file in the feeds
// directory. The feed name is derived from the filename.
type Seed struct {
	Name string `yaml:"-"`
	URL  string `yaml:"url"`

	Settings struct {
		PollingInterval int    `yaml:"polling_interval"`
		Template        string `yaml:"template"`
		AutoPost        bool   `yaml:"auto_post"`
	} `yaml:"settings"`

	Channels []string `yaml:"channels"`
}
