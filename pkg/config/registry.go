package config

// Persistent state keys (Registry)
const (
	KeySaveFolder       = "save_folder"
	KeyReplayRate       = "replay_rate"
	KeyThrottleInterval = "throttle_interval"
	KeyAutoConfirm      = "auto_confirm"
)
