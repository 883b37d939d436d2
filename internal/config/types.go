package config

// Config is the process configuration, loaded from a JSON (or YAML)
// file. Operator-editable runtime settings (anti-spam quota) live in
// the settings collection instead, so they survive restarts and can be
// changed over the API without touching this file.
type Config struct {
	Transport  TransportConfig  `json:"transport"`
	Logging    LoggingConfig    `json:"logging"`
	Store      StoreConfig      `json:"store"`
	Connection ConnectionConfig `json:"connection,omitempty"`
	Engine     EngineConfig     `json:"engine,omitempty"`
	Scheduler  SchedulerConfig  `json:"scheduler,omitempty"`
	AntiSpam   AntiSpamConfig   `json:"anti_spam,omitempty"`
	HTTP       HTTPConfig       `json:"http,omitempty"`
}

type TransportConfig struct {
	// Driver selects the network adapter. Currently "telegram".
	Driver string `json:"driver"`

	// Token may be left empty and provided as GROUPCAST_BOT_TOKEN.
	Token string `json:"token,omitempty"`

	// GroupIDs are the destination chats the operator may target.
	GroupIDs []int64 `json:"group_ids,omitempty"`

	RatePerSec int `json:"rate_per_sec,omitempty"`
}

type LoggingConfig struct {
	Level   string     `json:"level,omitempty"`
	Console bool       `json:"console"`
	File    FileConfig `json:"file,omitempty"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type StoreConfig struct {
	// Driver: "file" (default) or "sqlite" (build tag).
	Driver string `json:"driver,omitempty"`
	Path   string `json:"path"`

	// BusyTimeout applies to the sqlite driver only.
	BusyTimeout Duration `json:"busy_timeout,omitempty"`
}

// ConnectionConfig tunes the session state machine.
type ConnectionConfig struct {
	MaxReconnectAttempts int      `json:"max_reconnect_attempts,omitempty"`
	ReconnectDelay       Duration `json:"reconnect_delay,omitempty"`
	ErrorRetryDelay      Duration `json:"error_retry_delay,omitempty"`
	SettleDelay          Duration `json:"settle_delay,omitempty"`
	LogCapacity          int      `json:"log_capacity,omitempty"`
}

type EngineConfig struct {
	// SendDelay is the fixed pause between destinations ("3s" default).
	SendDelay Duration `json:"send_delay,omitempty"`
}

type SchedulerConfig struct {
	// Timezone for cron triggers and daily statistics buckets
	// (IANA name; default local).
	Timezone string `json:"timezone,omitempty"`
}

// AntiSpamConfig tunes limiter housekeeping only; the quota itself is a
// runtime setting.
type AntiSpamConfig struct {
	CleanupEvery Duration `json:"cleanup_every,omitempty"`
	StaleAfter   Duration `json:"stale_after,omitempty"`
}

type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default "127.0.0.1:8090"
}
