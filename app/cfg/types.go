package cfg

type Cfg struct {
	// Storage configuration
	DBPath string

	// Application configuration
	FeedsDir          string
	Port              string
	BaseUrl           string
	WorkerCount       int
	SchedulerInterval int
	APIAccessKey      string
	SentryDSN         string

	// Channel application credentials configured at deploy time. Access
	// tokens are obtained and renewed at runtime through connect/refresh.
	BlueskyHost          string
	GoogleClientID       string
	GoogleClientSecret   string
	LinkedInClientID     string
	LinkedInClientSecret string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
