package engine

import (
	"github.com/jllopis/arbiter/pkg/catalog"
	"github.com/jllopis/arbiter/pkg/core"
)

// Candidate is a scored (template, context) pair.
type Candidate struct {
	Template catalog.Template
	Context  core.ContextRef
	Score    float64
}

// TieBreaker is consulted only when a challenger's score equals the
// incumbent's. Returning true replaces the incumbent. Without a tie-breaker
// the earlier candidate keeps the slot.
type TieBreaker func(incumbent, challenger Candidate) bool

// Round accumulates the arbitration state of one agent for one decision
// round. It is owned by a single goroutine.
type Round struct {
	ID    string
	Tick  uint64
	Agent core.AgentID
	Pawn  core.PawnID

	best         *Candidate
	templateBest map[catalog.Identity]float64
	tie          TieBreaker
}

// NewRound opens a round. An empty id gets a generated one.
func NewRound(id string, tick uint64, agent core.AgentID, pawn core.PawnID) *Round {
	if id == "" {
		id = core.NewRoundID()
	}
	if pawn == "" {
		pawn = core.PawnID(agent)
	}
	return &Round{
		ID:           id,
		Tick:         tick,
		Agent:        agent,
		Pawn:         pawn,
		templateBest: make(map[catalog.Identity]float64),
	}
}

// WithTieBreaker installs tb and returns the round.
func (r *Round) WithTieBreaker(tb TieBreaker) *Round {
	r.tie = tb
	return r
}

// BestScore is the current best final score, or 0 when nothing won yet.
func (r *Round) BestScore() float64 {
	if r.best == nil {
		return 0
	}
	return r.best.Score
}

// Best returns the current winner.
func (r *Round) Best() (Candidate, bool) {
	if r.best == nil {
		return Candidate{}, false
	}
	return *r.best, true
}

// Ceiling reports whether t can no longer win: its best achievable score,
// priority times 1, does not exceed the current best.
func (r *Round) Ceiling(t catalog.Template) bool {
	return r.best != nil && r.best.Score >= t.Priority
}

// templateBound is the best raw product recorded for t so far.
func (r *Round) templateBound(id catalog.Identity) float64 {
	return r.templateBest[id]
}

func (r *Round) recordProduct(id catalog.Identity, product float64) {
	if product > r.templateBest[id] {
		r.templateBest[id] = product
	}
}

// Offer proposes c. It replaces the current winner iff its score is
// strictly greater, or equal and the tie-breaker prefers it. Scores of zero
// or below never win.
func (r *Round) Offer(c Candidate) bool {
	if !(c.Score > 0) {
		return false
	}
	if r.best == nil || c.Score > r.best.Score {
		r.best = &c
		return true
	}
	if c.Score == r.best.Score && r.tie != nil && r.tie(*r.best, c) {
		r.best = &c
		return true
	}
	return false
}

// Pick converts the winner into a decision outcome.
func (r *Round) Pick() (core.Pick, bool) {
	if r.best == nil {
		return core.Pick{}, false
	}
	return core.Pick{
		RoundID:    r.ID,
		Tick:       r.Tick,
		Agent:      r.Agent,
		Pawn:       r.Pawn,
		ActionKey:  r.best.Template.ActionKey,
		ActionName: r.best.Template.Name,
		Context:    r.best.Context,
		Score:      r.best.Score,
	}, true
}
