// Package moderation implements the per-candidate moderation gate:
// transcription, lexical screening and semantic classification, applied
// strictly in sequence and short-circuiting on the first rejection.
package moderation

import (
	"errors"
	"fmt"
)

// Kind tags the outcome of a candidate.
type Kind int

const (
	// Accepted means the track was promoted, queued and marked played.
	Accepted Kind = iota
	// RejectedLexical means the transcript carried too much profanity.
	RejectedLexical
	// RejectedNoTranscript means no transcript could be obtained.
	RejectedNoTranscript
	// RejectedSemantic means the classifier flagged the lyrics as unsafe.
	RejectedSemantic
	// RejectedClassifierUnavailable means no valid classification was obtained.
	RejectedClassifierUnavailable
	// Skipped means the candidate was not evaluated or could not be queued.
	// It is not a content verdict and never blacklists.
	Skipped
)

func (k Kind) String() string {
	switch k {
	case Accepted:
		return "accepted"
	case RejectedLexical:
		return "rejected_lexical"
	case RejectedNoTranscript:
		return "rejected_no_transcript"
	case RejectedSemantic:
		return "rejected_semantic"
	case RejectedClassifierUnavailable:
		return "rejected_classifier_unavailable"
	case Skipped:
		return "skipped"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// IsRejection reports whether k is a moderation rejection.
func (k Kind) IsRejection() bool {
	switch k {
	case RejectedLexical, RejectedNoTranscript, RejectedSemantic, RejectedClassifierUnavailable:
		return true
	default:
		return false
	}
}

// Verdict is the single outcome of one candidate.
type Verdict struct {
	Kind Kind
	// Reason is the lexical summary, classifier explanation or skip cause.
	Reason string
	// Path is the permanent path of an accepted track.
	Path string
	// Stage is the last stage the candidate reached.
	Stage State
	// Cached is true when the track was accepted from the permanent store
	// without running moderation.
	Cached bool
}

// State is a stage of the moderation state machine.
type State string

const (
	StateFetched         State = "fetched"
	StateTranscribed     State = "transcribed"
	StateLexicalChecked  State = "lexical_checked"
	StateSemanticChecked State = "semantic_checked"
	StateAccepted        State = "accepted"
	StateRejected        State = "rejected"
)

// ErrInvalidTransition is returned when a stage is entered out of order.
var ErrInvalidTransition = errors.New("moderation: invalid state transition")

// validTransitions defines the order in which stages may be entered.
var validTransitions = map[State][]State{
	StateFetched:         {StateTranscribed, StateAccepted, StateRejected},
	StateTranscribed:     {StateLexicalChecked, StateRejected},
	StateLexicalChecked:  {StateSemanticChecked, StateRejected},
	StateSemanticChecked: {StateAccepted, StateRejected},
	StateAccepted:        {},
	StateRejected:        {},
}

func canTransition(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// tracker follows one candidate through the stages.
type tracker struct {
	state State
}

func (t *tracker) advance(to State) error {
	if !canTransition(t.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.state, to)
	}
	t.state = to
	return nil
}
