package constants

// Context and session keys
const (
	ContextKeyUserID = "user_id"
	ContextKeyTask   = "task"
)

// Session configuration
const (
	SessionCookieName = "tasker_session"
	SessionMaxAge     = 86400 * 7 // 7 days
)

// Pagination bounds
const (
	MinPageSize     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// DateLayout is the wire format for calendar days.
const DateLayout = "2006-01-02"

// RedisPrefsPrefix namespaces preference hashes in Redis.
const RedisPrefsPrefix = "tasker:prefs:"
