package config

const (
	defaultLogDir       = "~/.local/share/periscope/logs"
	defaultSegmentName  = "periscope_frames"
	defaultSlotCapacity = 1 << 20 // 1 MiB covers a 1080p BGRA quarter-res frame with headroom
	defaultReadRetries  = 3

	defaultConnectTimeoutMS = 100
	defaultBridgeBind       = "127.0.0.1:7718"

	defaultClockWindowSize      = 16
	defaultClockSmoothingFactor = 0.1
	defaultClockSnapBoundMS     = 250
	defaultClockSyncIntervalS   = 5

	defaultHeartbeatIntervalS = 2
	defaultHeartbeatTimeoutS  = 10

	defaultJournalRetentionDays = 14

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir: defaultLogDir,
		},
		Segment: Segment{
			Name:         defaultSegmentName,
			SlotCapacity: defaultSlotCapacity,
			ReadRetries:  defaultReadRetries,
		},
		Channel: Channel{
			ConnectTimeoutMS: defaultConnectTimeoutMS,
			BridgeEnabled:    false,
			BridgeBind:       defaultBridgeBind,
		},
		Clock: Clock{
			WindowSize:      defaultClockWindowSize,
			SmoothingFactor: defaultClockSmoothingFactor,
			SnapBoundMS:     defaultClockSnapBoundMS,
			SyncIntervalS:   defaultClockSyncIntervalS,
		},
		Session: Session{
			HeartbeatIntervalS: defaultHeartbeatIntervalS,
			HeartbeatTimeoutS:  defaultHeartbeatTimeoutS,
		},
		Journal: Journal{
			Enabled:       true,
			RetentionDays: defaultJournalRetentionDays,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
