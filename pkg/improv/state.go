// Package improv runs the Improv Battle game: a host that hands out scenes,
// reacts to each performance and closes the show after a fixed number of rounds.
package improv

// Phase is the game's position in the round cycle.
type Phase string

const (
	PhaseIntro          Phase = "intro"
	PhaseAwaitingImprov Phase = "awaiting_improv"
	PhaseReacting       Phase = "reacting"
	PhaseDone           Phase = "done"
)

const DefaultMaxRounds = 3

// Round is one scene and the host's reaction to it.
type Round struct {
	Scenario     string `json:"scenario"`
	HostReaction string `json:"host_reaction"`
}

// State belongs to one game. CurrentRound stays below MaxRounds until the
// game is done, and Rounds never holds more than CurrentRound+1 entries.
type State struct {
	PlayerName   string  `json:"player_name,omitempty"`
	CurrentRound int     `json:"current_round"`
	MaxRounds    int     `json:"max_rounds"`
	Rounds       []Round `json:"rounds"`
	Phase        Phase   `json:"phase"`
}

func NewState(maxRounds int) *State {
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}
	return &State{MaxRounds: maxRounds, Phase: PhaseIntro}
}

// Done reports whether the game has ended.
func (s *State) Done() bool { return s.Phase == PhaseDone }
