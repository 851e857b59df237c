package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func validResult() Result {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return Result{
		GameID:    "5f0c6a4e-3f5a-4c2b-9a57-6f8d2f5c1e11",
		PlayerID:  "alice",
		Outcome:   OutcomeWon,
		StartedAt: start,
		EndedAt:   start.Add(10 * time.Minute),
	}
}

func TestResultValidate(t *testing.T) {
	assert.NoError(t, validResult().Validate())

	r := validResult()
	r.GameID = ""
	assert.ErrorIs(t, r.Validate(), ErrInvalidResult)

	r = validResult()
	r.PlayerID = ""
	assert.ErrorIs(t, r.Validate(), ErrInvalidResult)

	r = validResult()
	r.Outcome = "draw"
	assert.ErrorIs(t, r.Validate(), ErrInvalidResult)

	r = validResult()
	r.EndedAt = r.StartedAt.Add(-time.Second)
	assert.ErrorIs(t, r.Validate(), ErrInvalidResult)
}

// Property: ValidOutcome accepts exactly the three defined outcomes.
func TestPropertyValidOutcome(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		outcome := rapid.StringMatching(`[a-z]{1,12}`).Draw(t, "outcome")
		got := ValidOutcome(outcome)
		want := outcome == OutcomeWon || outcome == OutcomeLost || outcome == OutcomeAbandoned
		if got != want {
			t.Fatalf("ValidOutcome(%q) = %v, want %v", outcome, got, want)
		}
	})
}
