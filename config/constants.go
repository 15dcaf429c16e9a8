package config

import "time"

/* =========================
   COMMITMENT ROTATION
========================= */

const (
	// Default namespace when the caller names none
	DefaultNamespace = "default"

	// Rotate after this many rounds on one commitment (0 disables)
	DefaultMaxRoundsPerCommitment = 10000

	// Rotate commitments older than this (0 disables)
	DefaultMaxCommitmentAge = 24 * time.Hour

	// How many revealed commitments the API lists by default
	DefaultRevealedLimit = 20
	MaxRevealedLimit     = 200
)

/* =========================
   REDIS TTL CONFIGURATION
========================= */

const (
	// Activation lock TTL
	// Key: fair:lock:{namespace}
	ActivationLockTTL = 10 * time.Second

	// Cached current commitment TTL
	// Key: fair:current:{namespace}
	CurrentHashTTL = 1 * time.Hour
)

/* =========================
   REDIS KEY PATTERNS
========================= */

const (
	RedisActivationLockKey = "fair:lock:%s"    // fair:lock:{namespace}
	RedisCurrentHashKey    = "fair:view:%s"    // fair:view:{namespace}

	// WebSocket channel per namespace
	ChannelPattern = "fair:%s" // fair:{namespace}
)

/* =========================
   POSTGRESQL CONFIGURATION
========================= */

const (
	// Connection pool settings
	MaxOpenConns    = 25
	MaxIdleConns    = 5
	ConnMaxLifetime = 5 * time.Minute
	ConnectTimeout  = 10 * time.Second
)

/* =========================
   REDIS CONFIGURATION
========================= */

const (
	RedisDialTimeout  = 5 * time.Second
	RedisReadTimeout  = 3 * time.Second
	RedisWriteTimeout = 3 * time.Second
	RedisPoolSize     = 10
	RedisMinIdleConns = 5
)

/* =========================
   PERSISTENCE RETRY
========================= */

const (
	// Round inserts retry transient failures, never re-deriving
	MaxRetries = 3
	RetryDelay = 200 * time.Millisecond
)

/* =========================
   API CONFIGURATION
========================= */

const (
	ReadHeaderTimeout = 5 * time.Second
	ShutdownTimeout   = 10 * time.Second

	// Request bodies above this are rejected
	MaxRequestBody = 64 * 1024
)

/* =========================
   WEBSOCKET CONFIGURATION
========================= */

const (
	// WebSocket settings
	WSReadDeadline  = 60 * time.Second
	WSWriteDeadline = 10 * time.Second
	WSPingInterval  = 30 * time.Second

	// Buffer sizes
	WSReadBufferSize  = 1024
	WSWriteBufferSize = 1024
	WSSendBuffer      = 256

	// Message size limits
	MaxMessageSize = 512 * 1024 // 512KB
)
