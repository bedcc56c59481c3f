package policy

import "github.com/Mindburn-Labs/contagion/pkg/report"

// RegimeState is one checkpointed adaptive regime.
type RegimeState struct {
	Location string `msgpack:"l"`
	Context  string `msgpack:"c"`
	Regime   Regime `msgpack:"r"`
	Since    int    `msgpack:"s"`
	Changed  bool   `msgpack:"x"`
}

// State is the checkpointable part of a policy.
type State struct {
	LastReport *report.Report        `msgpack:"last"`
	Incidence  report.IncidenceState `msgpack:"inc"`
	Regimes    []RegimeState         `msgpack:"regimes"`
}

// Checkpointer is implemented by policies that carry state across days.
type Checkpointer interface {
	CheckpointState() State
	RestoreState(State) error
}

var (
	_ Checkpointer = (*FixedPolicy)(nil)
	_ Checkpointer = (*AdaptivePolicy)(nil)
	_ Policy       = (*FixedPolicy)(nil)
	_ Policy       = (*AdaptivePolicy)(nil)
)
