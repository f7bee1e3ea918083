package improv

import (
	"fmt"
	"strings"
	"unicode"
)

var exitPhrases = []string{"stop game", "end show", "quit", "exit"}

// Welcome is the first line of every game, asking for the player's name.
const Welcome = "Welcome to Improv Battle! I'm your host, and tonight you're the star. Before we begin, what's your name?"

// Host drives a State one utterance at a time. The host holds no per-game
// data, so one Host can serve many games.
type Host struct {
	chooser Chooser
}

func NewHost(chooser Chooser) *Host {
	if chooser == nil {
		chooser = NewRandomChooser(nil, nil)
	}
	return &Host{chooser: chooser}
}

// IsExit reports whether an utterance ends the game.
func IsExit(utterance string) bool {
	lower := strings.ToLower(utterance)
	for _, p := range exitPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Turn advances the game with one utterance and returns the host's line.
func (h *Host) Turn(st *State, utterance string) string {
	if st.Phase == PhaseDone {
		return "The show is over. Thanks again for playing Improv Battle!"
	}
	if IsExit(utterance) {
		st.Phase = PhaseDone
		return fmt.Sprintf("Thanks for playing Improv Battle, %s! That's a wrap.", h.playerName(st))
	}

	switch st.Phase {
	case PhaseIntro:
		st.PlayerName = firstToken(utterance)
		scenario := h.chooser.Choose(CategoryScenario)
		st.Rounds = append(st.Rounds, Round{Scenario: scenario})
		st.Phase = PhaseAwaitingImprov
		return fmt.Sprintf("Nice to meet you, %s! Round 1 of %d. Here's your scene: %s Take it away!", st.PlayerName, st.MaxRounds, scenario)

	case PhaseAwaitingImprov:
		reaction := h.react()
		if st.CurrentRound < len(st.Rounds) {
			st.Rounds[st.CurrentRound].HostReaction = reaction
		}
		st.Phase = PhaseReacting
		if st.CurrentRound == st.MaxRounds-1 {
			return reaction + " Say anything when you're ready for your final verdict."
		}
		return reaction + " Say anything when you're ready for the next round."

	case PhaseReacting:
		st.CurrentRound++
		if st.CurrentRound >= st.MaxRounds {
			st.Phase = PhaseDone
			label := h.chooser.Choose(CategoryLabel)
			return fmt.Sprintf("That's the end of the show, %s! You played %d rounds, and your improv style is: %s. Thanks for playing Improv Battle!", h.playerName(st), st.MaxRounds, label)
		}
		scenario := h.chooser.Choose(CategoryScenario)
		st.Rounds = append(st.Rounds, Round{Scenario: scenario})
		st.Phase = PhaseAwaitingImprov
		return fmt.Sprintf("Round %d of %d. Here's your scene: %s Take it away!", st.CurrentRound+1, st.MaxRounds, scenario)
	}
	return "Let's get the show started. What's your name?"
}

func (h *Host) react() string {
	opener := h.chooser.Choose(CategoryOpener)
	praise := h.chooser.Choose(CategoryPraise)
	closer := h.chooser.Choose(CategoryCloser)
	switch h.chooser.Choose(CategoryStyle) {
	case StyleCritical:
		return joinPhrases(opener, "Honestly,", h.chooser.Choose(CategoryCritique), closer)
	case StyleMixed:
		return joinPhrases(opener, praise, "That said,", h.chooser.Choose(CategoryCritique), closer)
	case StyleSuperlative:
		return joinPhrases(h.chooser.Choose(CategorySuperlative), praise, closer)
	default:
		return joinPhrases(opener, praise, closer)
	}
}

func (h *Host) playerName(st *State) string {
	if st.PlayerName == "" {
		return "Player"
	}
	return st.PlayerName
}

func firstToken(utterance string) string {
	fields := strings.Fields(utterance)
	if len(fields) == 0 {
		return "Player"
	}
	name := strings.TrimFunc(fields[0], func(r rune) bool {
		return unicode.IsPunct(r) && r != '\'' && r != '-'
	})
	if name == "" {
		return "Player"
	}
	return name
}

func joinPhrases(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}
