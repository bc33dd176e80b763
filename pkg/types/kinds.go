package types

// KindCapabilities describes kind-specific scheduler behavior.
// Resolved through a lookup table rather than per-kind types so new
// kinds are a table entry, not a code change elsewhere.
type KindCapabilities struct {
	Checkpointable bool
	MaxRetries     int
}

var kindTable = map[TaskKind]KindCapabilities{
	KindGeneric:    {Checkpointable: true, MaxRetries: 3},
	KindBuild:      {Checkpointable: false, MaxRetries: 2},
	KindMLJob:      {Checkpointable: true, MaxRetries: 5},
	KindSimulation: {Checkpointable: true, MaxRetries: 5},
	KindService:    {Checkpointable: false, MaxRetries: 10},
}

// CapabilitiesFor returns the capability entry for a kind, falling
// back to the generic entry for unknown kinds.
func CapabilitiesFor(kind TaskKind) KindCapabilities {
	if caps, ok := kindTable[kind]; ok {
		return caps
	}
	return kindTable[KindGeneric]
}
