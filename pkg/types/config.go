package types

type Config struct {
	Environment     string `envconfig:"ENVIRONMENT" default:"development"`
	ServerPort      uint   `envconfig:"SERVER_PORT" default:"8080"`
	DatabaseURL     string `envconfig:"DATABASE_URL"`
	DatabaseMaxConn int32  `envconfig:"DATABASE_MAX_CONNS" default:"10"`
	ReadTimeoutSec  uint   `envconfig:"READ_TIMEOUT_SEC" default:"10"`
	WriteTimeoutSec uint   `envconfig:"WRITE_TIMEOUT_SEC" default:"15"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	LogFile  string `envconfig:"LOG_FILE"`

	// Cognito Auth
	CognitoUserPoolID string `envconfig:"COGNITO_USER_POOL_ID"`
	CognitoClientID   string `envconfig:"COGNITO_CLIENT_ID"`
	CognitoIssuerURL  string `envconfig:"COGNITO_ISSUER_URL"`

	// Auth Configuration
	CookieName          string `envconfig:"SESSION_COOKIE_NAME" default:"session_id"`
	SessionMaxAgeSec    int    `envconfig:"SESSION_MAX_AGE_SEC" default:"604800"` // 7 days
	AuthRateLimitPerMin int    `envconfig:"AUTH_RATE_LIMIT_PER_MIN" default:"20"`

	// Cookie encryption keys (base64 encoded)
	// openssl rand -base64 32
	// to generate values
	CookieHashKey  string `envconfig:"COOKIE_HASH_KEY"`  // 32 or 64 bytes
	CookieBlockKey string `envconfig:"COOKIE_BLOCK_KEY"` // 16, 24, or 32 bytes

	// S3 Storage
	ProjectImagesBucket     string `envconfig:"S3_PROJECT_IMAGES_BUCKET" default:"crowdfund-project-images"`
	ProfilePicturesBucket   string `envconfig:"S3_PROFILE_PICTURES_BUCKET" default:"crowdfund-profile-pictures"`
	MilestoneEvidenceBucket string `envconfig:"S3_MILESTONE_EVIDENCE_BUCKET" default:"crowdfund-milestone-evidence"`
	StoragePublicBaseURL    string `envconfig:"S3_PUBLIC_BASE_URL"`

	// Stripe
	StripeSecretKey     string `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET"`

	// Funding reconciliation
	ReconcileIntervalSec uint `envconfig:"RECONCILE_INTERVAL_SEC" default:"30"`
	ReconcileBatchSize   int  `envconfig:"RECONCILE_BATCH_SIZE" default:"200"`
	ReconcileWorkers     int  `envconfig:"RECONCILE_WORKERS" default:"8"`
	FundingRetryMaxTries uint `envconfig:"FUNDING_RETRY_MAX_TRIES" default:"5"`
	EffectMaxAttempts    int  `envconfig:"FUNDING_EFFECT_MAX_ATTEMPTS" default:"10"`
}
