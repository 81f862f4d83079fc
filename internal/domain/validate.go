package domain

import "fmt"

// Validate is the schema gate for every state coming back from the oracle.
// The oracle is prompted not to add or remove rounds, but prompt wording is
// not a guarantee, so the round count is checked here against expectedRounds
// (pass -1 on initial ingest, before a count has been pinned).
func Validate(gs *GameState, expectedRounds int) error {
	if gs == nil {
		return fmt.Errorf("%w: nil state", ErrInvalidState)
	}

	switch gs.Status {
	case GameStatusSetup, GameStatusActive, GameStatusFinished:
	default:
		return fmt.Errorf("%w: status %q", ErrInvalidState, gs.Status)
	}

	if len(gs.Suspects) == 0 {
		return fmt.Errorf("%w: no suspects", ErrInvalidState)
	}

	suspectIDs := make(map[string]bool, len(gs.Suspects))
	culprits := 0
	for _, s := range gs.Suspects {
		if s.ID == "" {
			return fmt.Errorf("%w: suspect with empty id", ErrInvalidState)
		}
		if suspectIDs[s.ID] {
			return fmt.Errorf("%w: duplicate suspect id %q", ErrInvalidState, s.ID)
		}
		suspectIDs[s.ID] = true
		if s.IsCulprit {
			culprits++
		}
	}
	if culprits != 1 {
		return fmt.Errorf("%w: expected exactly one culprit, got %d", ErrInvalidState, culprits)
	}

	if len(gs.Rounds) != 2*len(gs.Suspects) {
		return fmt.Errorf("%w: %d rounds for %d suspects", ErrInvalidState, len(gs.Rounds), len(gs.Suspects))
	}
	if expectedRounds >= 0 && len(gs.Rounds) != expectedRounds {
		return fmt.Errorf("%w: got %d, expected %d", ErrRoundCountChanged, len(gs.Rounds), expectedRounds)
	}

	active := 0
	for i, r := range gs.Rounds {
		switch r.Status {
		case RoundInactive, RoundActive, RoundCompleted:
		default:
			return fmt.Errorf("%w: round %d status %q", ErrInvalidState, i, r.Status)
		}
		switch r.Kind {
		case RoundInterrogation, RoundVoting:
		default:
			return fmt.Errorf("%w: round %d kind %q", ErrInvalidState, i, r.Kind)
		}
		if r.SuspectID != "" && !suspectIDs[r.SuspectID] {
			return fmt.Errorf("%w: round %d references suspect %q", ErrInvalidState, i, r.SuspectID)
		}
		if r.Status == RoundActive {
			active++
		}
	}

	// exactly one round runs at a time while the game is live
	switch gs.Status {
	case GameStatusActive:
		if active != 1 {
			return fmt.Errorf("%w: %d active rounds", ErrInvalidState, active)
		}
	default:
		if active != 0 {
			return fmt.Errorf("%w: %d active rounds in %s game", ErrInvalidState, active, gs.Status)
		}
	}

	nodeIDs := make(map[string]bool, len(gs.Deduction.Nodes))
	for _, n := range gs.Deduction.Nodes {
		switch n.Kind {
		case NodeSuspect, NodeEvidence, NodeStatement:
		default:
			return fmt.Errorf("%w: node %q kind %q", ErrInvalidState, n.ID, n.Kind)
		}
		nodeIDs[n.ID] = true
	}
	for _, e := range gs.Deduction.Edges {
		switch e.Kind {
		case EdgeSupports, EdgeContradicts, EdgeImplicates:
		default:
			return fmt.Errorf("%w: edge %q kind %q", ErrInvalidState, e.ID, e.Kind)
		}
		if !nodeIDs[e.SourceNodeID] || !nodeIDs[e.TargetNodeID] {
			return fmt.Errorf("%w: edge %q has dangling endpoint", ErrInvalidState, e.ID)
		}
	}

	if gs.Deduction.Warmth < 0 || gs.Deduction.Warmth > 100 {
		return fmt.Errorf("%w: warmth %.2f out of range", ErrInvalidState, gs.Deduction.Warmth)
	}

	switch gs.Outcome.Winner {
	case WinnerInnocents, WinnerCulprit, WinnerUndetermined, "":
	default:
		return fmt.Errorf("%w: winner %q", ErrInvalidState, gs.Outcome.Winner)
	}

	return nil
}
