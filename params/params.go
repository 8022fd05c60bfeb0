package params

import "time"

const (
	ServerBodyLimit    = 1048576 // 1 MiB
	ServerIdleTimeout  = 30 * time.Second
	ServerReadTimeout  = 10 * time.Second
	ServerWriteTimeout = 10 * time.Second

	SessionCookieName       = "admin-token" // bearer token cookie for the admin area
	LoginAttemptKeyPrefix   = "login:"      // attempt tracker keys, one per client ip
	DefaultMaxLoginAttempts = 5             // consecutive failures before a lockout
	DefaultLockoutDuration  = 15 * time.Minute
	DefaultSessionTimeout   = 24 * time.Hour // bearer token lifetime

	LoginRateLimitMax    = 20              // transport-level throttle on the login endpoint
	LoginRateLimitWindow = 1 * time.Minute // sliding window for the throttle

	AuditLogMaxEvents    = 1000 // in-memory audit ring capacity, oldest evicted first
	ResetTokenExpiration = 30 * time.Minute

	TokenIssuer     = "labauth"
	TokenAudience   = "labauth-admin"
	JWTSecretLength = 48 // generated signing secret length when none is configured

	AdminLoginPath        = "/admin/login"
	HealthCheckServerAddr = ":3001" // health check server address
)
