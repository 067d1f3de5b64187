package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`

	// Robot is the remote robot platform connection (address + credentials
	// + component names). Credentials come from here or the environment,
	// never from source.
	Robot RobotConfig `json:"robot"`

	Feeder   FeederConfig   `json:"feeder"`
	Camera   CameraConfig   `json:"camera"`
	Schedule ScheduleConfig `json:"schedule"`

	// Storage controls the optional feed history backend.
	Storage *StorageConfig `json:"storage,omitempty"`

	// Report controls the optional daily feed summary.
	Report *ReportConfig `json:"report,omitempty"`

	// Debug controls the optional debug HTTP server (pprof + metrics).
	Debug *DebugConfig `json:"debug,omitempty"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// GroupLog is the chat id (as string) receiving log messages and reports.
	GroupLog string `json:"group_log"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// RobotConfig points at the remote robot platform.
//
// APIKey/APIKeyID may be left empty in the file and supplied via the
// FEEDBOT_ROBOT_API_KEY / FEEDBOT_ROBOT_API_KEY_ID environment variables
// (a .env file is honored at startup).
type RobotConfig struct {
	Address  string `json:"address"`
	APIKey   string `json:"api_key,omitempty"`
	APIKeyID string `json:"api_key_id,omitempty"`

	MotorName  string `json:"motor_name,omitempty"`  // default: "stepper"
	CameraName string `json:"camera_name,omitempty"` // default: "petcam"

	// DialTimeout/CallTimeout are Go duration strings.
	DialTimeout string `json:"dial_timeout,omitempty"` // default: "15s"
	CallTimeout string `json:"call_timeout,omitempty"` // default: "10s"
}

// FeederConfig fixes the dispensing amount. The reference mechanism runs the
// stepper at 500 rpm for -3 revolutions.
type FeederConfig struct {
	RPM         float64 `json:"rpm,omitempty"`         // default: 500
	Revolutions float64 `json:"revolutions,omitempty"` // default: -3
	// Timeout bounds a single feed run (Go duration string). Default: "30s".
	Timeout string `json:"timeout,omitempty"`
}

type CameraConfig struct {
	MimeType string `json:"mime_type,omitempty"` // default: "image/jpeg"
	// RefreshInterval is the auto-refresh cadence (default "1s").
	RefreshInterval string `json:"refresh_interval,omitempty"`
	// AutoRefresh keeps the cached frame warm while connected. Unset means
	// enabled; set to false to fetch frames on demand only.
	AutoRefresh *bool `json:"auto_refresh,omitempty"`
	// Timeout bounds a single frame fetch. Default: "5s".
	Timeout string `json:"timeout,omitempty"`
}

// AutoRefreshEnabled reports whether the background refresh loop should run.
func (c CameraConfig) AutoRefreshEnabled() bool {
	return c.AutoRefresh == nil || *c.AutoRefresh
}

type ScheduleConfig struct {
	// Path of the persisted schedule file (JSON array of "HH:MM" strings).
	Path string `json:"path,omitempty"` // default: "./schedule.json"
	// CheckInterval must stay <= 60s so no minute is skipped. Default: "30s".
	CheckInterval string `json:"check_interval,omitempty"`
	// Timezone for matching wall-clock times (default: local).
	Timezone string `json:"timezone,omitempty"`
}

// StorageConfig controls the feed history backend.
//
// Driver values:
//   - "sqlite": SQLite database file
//   - "file":   append-only JSONL file
//   - "" or "none": history disabled
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// ReportConfig schedules a feed summary message to the owner chat.
type ReportConfig struct {
	Enabled bool `json:"enabled"`
	// Cron is a standard 5-field cron expression (default "0 8 * * *").
	Cron string `json:"cron,omitempty"`
}

// DebugConfig controls the optional debug HTTP server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - If you bind to a non-loopback address, set a token or explicitly
//     allow_insecure.
type DebugConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:6060"
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
}
