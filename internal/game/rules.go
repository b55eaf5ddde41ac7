// internal/game/rules.go
package game

import (
	"fmt"
	"time"

	"github.com/jason-s-yu/popsauce/internal/protocol"
)

// Limits enforced on rules requested by a lobby owner.
const (
	MaxPointsToWin          = 10000
	MaxTimeToAnswer         = 5 * time.Minute
	MaxTimeBetweenQuestions = time.Minute
	MaxTimeBeforeStart      = time.Minute
)

// Rules are the per-lobby game settings. New lobbies start from the server
// defaults; the owner may change them while the lobby is in the waiting room.
type Rules struct {
	PointsToWin          int           `json:"pointsToWin"`          // first player to reach this wins
	TimeBeforeStart      time.Duration `json:"timeBeforeStart"`      // delay between GameStarts and the first question
	TimeToAnswer         time.Duration `json:"timeToAnswer"`         // how long a question stays open
	TimeBetweenQuestions time.Duration `json:"timeBetweenQuestions"` // pause after the answer is revealed
}

// DefaultRules returns the stock popsauce settings.
func DefaultRules() Rules {
	return Rules{
		PointsToWin:          100,
		TimeBeforeStart:      5 * time.Second,
		TimeToAnswer:         20 * time.Second,
		TimeBetweenQuestions: 5 * time.Second,
	}
}

// Update applies a CHANGE_RULES request. Zero fields keep the old value.
// Nothing is changed if any requested value is out of range.
func (rules *Rules) Update(req protocol.Rules) error {
	next := *rules

	if req.PointsToWin != 0 {
		if req.PointsToWin > MaxPointsToWin {
			return fmt.Errorf("pointsToWin must be at most %d", MaxPointsToWin)
		}
		next.PointsToWin = int(req.PointsToWin)
	}

	assignSeconds := func(field *time.Duration, secs uint32, max time.Duration, name string) error {
		if secs == 0 {
			return nil
		}
		d := time.Duration(secs) * time.Second
		if d > max {
			return fmt.Errorf("%s must be at most %s", name, max)
		}
		*field = d
		return nil
	}
	if err := assignSeconds(&next.TimeToAnswer, req.TimeToAnswer, MaxTimeToAnswer, "timeToAnswer"); err != nil {
		return err
	}
	if err := assignSeconds(&next.TimeBetweenQuestions, req.TimeBetweenQuestions, MaxTimeBetweenQuestions, "timeBetweenQuestions"); err != nil {
		return err
	}
	if err := assignSeconds(&next.TimeBeforeStart, req.TimeBeforeStart, MaxTimeBeforeStart, "timeBeforeStart"); err != nil {
		return err
	}

	*rules = next
	return nil
}

// Wire converts the rules to their RULES_CHANGED representation.
func (rules Rules) Wire() protocol.Rules {
	return protocol.Rules{
		PointsToWin:          uint32(rules.PointsToWin),
		TimeToAnswer:         uint32(rules.TimeToAnswer / time.Second),
		TimeBetweenQuestions: uint32(rules.TimeBetweenQuestions / time.Second),
		TimeBeforeStart:      uint32(rules.TimeBeforeStart / time.Second),
	}
}
