// internal/game/scoring.go
package game

import "time"

// BaseScore is what the first correct answer to a question earns.
const BaseScore = 10

// CorrectAnswerText replaces the text of correct responses so that other
// players do not see the answer.
const CorrectAnswerText = "Correct Answer"

// DecayedPoints returns the points for a correct answer arriving `since`
// after the first correct one: one point less per whole second, never
// below one.
func DecayedPoints(since time.Duration) int {
	k := int(since / time.Second)
	if k < 0 {
		k = 0
	}
	if p := BaseScore - k; p > 1 {
		return p
	}
	return 1
}

// roundScore tracks correct answers to the current question.
type roundScore struct {
	first   time.Time
	correct int
}

// award returns the points for a correct answer that arrived at `at`.
func (s *roundScore) award(at time.Time) int {
	s.correct++
	if s.correct == 1 {
		s.first = at
		return BaseScore
	}
	return DecayedPoints(at.Sub(s.first))
}
