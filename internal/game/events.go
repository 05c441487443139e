package game

type EventKind string

const (
	EventVulnerability   EventKind = "vulnerability"
	EventCrashEntered    EventKind = "crash_entered"
	EventCrashExited     EventKind = "crash_exited"
	EventSnapshot        EventKind = "snapshot_unlocked"
	EventSingularity     EventKind = "singularity_reached"
	EventFinalVictory    EventKind = "final_victory_reached"
	EventPrestigeOffered EventKind = "prestige_offered"
	EventMilestone       EventKind = "milestone_crossed"
	EventRegimeChanged   EventKind = "regime_changed"
	EventOfflineEarnings EventKind = "offline_earnings"
	EventGrantApplied    EventKind = "grant_applied"
)

// Haptic is the vibration feedback a UI should play for an event.
type Haptic string

const (
	HapticNone    Haptic = ""
	HapticLight   Haptic = "light"
	HapticSuccess Haptic = "success"
	HapticWarning Haptic = "warning"
	HapticError   Haptic = "error"
	HapticHeavy   Haptic = "heavy"
)

// Event is a discrete notification emitted by the engine. The engine never
// performs I/O; sessions forward events to subscribers and the platform.
type Event struct {
	Kind    EventKind      `json:"kind"`
	Key     string         `json:"key,omitempty"`
	Message string         `json:"message"`
	At      int64          `json:"at"`
	Data    map[string]any `json:"data,omitempty"`
}

func (e Event) Haptic() Haptic {
	switch e.Kind {
	case EventVulnerability:
		return HapticWarning
	case EventCrashEntered:
		return HapticError
	case EventCrashExited, EventMilestone, EventOfflineEarnings, EventGrantApplied:
		return HapticSuccess
	case EventSingularity, EventFinalVictory:
		return HapticHeavy
	case EventRegimeChanged, EventSnapshot, EventPrestigeOffered:
		return HapticLight
	default:
		return HapticNone
	}
}
