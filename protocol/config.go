// Package protocol holds the shared tunables and constants the rest of the
// module's packages default to: a plain options struct with no config-file
// loader, populated by DefaultConfig and overridden field by field.
package protocol

import "time"

// Config bundles the runtime-tunable constants with their defaults. The
// fields documented below as not read only record a default; the package
// that owns that behaviour uses its own constant, and changing the field has
// no effect. Loading Config from a file, environment, or flags is out of
// scope; callers construct one with DefaultConfig and override fields
// directly.
type Config struct {
	// MaxRelayDepth is the default bound on the number of intermediate
	// relays in an envelope's Via. Not read: validation and path selection
	// use envelope.MaxRelayDepth.
	MaxRelayDepth int

	// DedupTTL/DedupCapacity are the defaults of the router's
	// duplicate-envelope cache. Not read: router.New uses the router
	// package's own constants.
	DedupTTL      time.Duration
	DedupCapacity int

	// AckReplayTTL/AckReplayCapacity are the defaults of the router's ACK
	// and read-receipt replay caches. Not read: router.New uses the router
	// package's own constants.
	AckReplayTTL      time.Duration
	AckReplayCapacity int

	// TrackerCapacity/TrackerMaxAge/TrackerRetention are the defaults of the
	// message tracker. Not read: the runtime builds its tracker with
	// tracker.New, which uses the tracker package's own defaults.
	TrackerCapacity  int
	TrackerMaxAge    time.Duration
	TrackerRetention time.Duration

	// HeartbeatInterval is how often check_all runs. StaleThreshold and
	// OfflineThreshold are the liveness state-transition boundaries.
	HeartbeatInterval time.Duration
	StaleThreshold    time.Duration
	OfflineThreshold  time.Duration

	// RoleEvaluationInterval is how often contribution scores are
	// recomputed. RoleDecayPerHour, PromotionThreshold, and
	// DemotionThreshold parameterize the scoring formula.
	RoleEvaluationInterval time.Duration
	RoleDecayPerHour       float64
	PromotionThreshold     float64
	DemotionThreshold      float64
	RoleAnnounceThrottle   time.Duration

	// ShadowPingInterval/ShadowPingTimeout drive the group shadow watchdog.
	// ShadowFailureThreshold, HubUnreachableTimeout and
	// CandidateOrphanTimeout record defaults only and are not read; the
	// watchdog's failure threshold is fixed inside package group.
	ShadowPingInterval       time.Duration
	ShadowPingTimeout        time.Duration
	ShadowFailureThreshold   int
	HubUnreachableTimeout    time.Duration
	CandidateOrphanTimeout   time.Duration
	PendingDecryptBufferAge  time.Duration

	// BackupReplicationFactor/BackupEntryTTL/BackupMaintenanceInterval
	// parameterize the store-and-forward coordinator.
	BackupReplicationFactor int
	BackupEntryTTL          time.Duration
	BackupMaintenanceInterval time.Duration

	// CacheCleanupInterval is how often the runtime sweeps the router's
	// TTL caches and the tracker.
	CacheCleanupInterval time.Duration
}

// DefaultConfig returns Config populated with reasonable defaults for every
// tunable; callers override individual fields as needed.
func DefaultConfig() Config {
	return Config{
		MaxRelayDepth: 4,

		DedupTTL:      10 * time.Minute,
		DedupCapacity: 10_000,

		AckReplayTTL:      5 * time.Minute,
		AckReplayCapacity: 5_000,

		TrackerCapacity:  10_000,
		TrackerMaxAge:    24 * time.Hour,
		TrackerRetention: 24 * time.Hour,

		HeartbeatInterval: 2 * time.Second,
		StaleThreshold:    30 * time.Second,
		OfflineThreshold:  2 * time.Minute,

		RoleEvaluationInterval: 60 * time.Second,
		RoleDecayPerHour:       0.05,
		PromotionThreshold:     10.0,
		DemotionThreshold:      2.0,
		RoleAnnounceThrottle:   30 * time.Second,

		ShadowPingInterval:        3 * time.Second,
		ShadowPingTimeout:         2 * time.Second,
		ShadowFailureThreshold:    2,
		HubUnreachableTimeout:     3 * time.Second,
		CandidateOrphanTimeout:    30 * time.Second,
		PendingDecryptBufferAge:   30 * time.Second,

		BackupReplicationFactor:   3,
		BackupEntryTTL:            24 * time.Hour,
		BackupMaintenanceInterval: 30 * time.Second,

		CacheCleanupInterval: 30 * time.Second,
	}
}
