package cfg

type Cfg struct {
	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Upstream feed configuration
	FeedAuthURL      string
	FeedAPIURL       string
	FeedClientID     string
	FeedClientSecret string
	FeedUsername     string
	FeedPassword     string

	// Asset store configuration
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string

	// Downstream publisher configuration
	PublisherURL string
	DailyBudget  int

	// Application configuration
	APIAccessKey      string
	CommunitiesDir    string
	AssetsDir         string
	SnapshotDir       string
	Port              string
	WorkerCount       int
	SchedulerInterval int

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
