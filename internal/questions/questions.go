// internal/questions/questions.go
package questions

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jason-s-yu/popsauce/internal/protocol"
)

// DefaultBatchSize is how many questions a game requests at a time.
const DefaultBatchSize = 10

var (
	ErrSupportTooLarge = errors.New("question support too large")
	ErrNoAnswers       = errors.New("question has no valid answers")
	ErrUnknownBackend  = errors.New("unknown question store backend")
)

// Question is a single trivia entry. For image questions Support holds the
// path of the image file, read at dispatch time.
type Question struct {
	ID          int64
	Text        string
	SupportType protocol.SupportType
	Support     string
	Answers     []string
}

// Store serves questions to lobbies and remembers which questions each
// lobby has already seen.
type Store interface {
	// RandomQuestions returns up to n questions never served to lobbyID and
	// marks them as served. An empty result means the bank is exhausted.
	RandomQuestions(ctx context.Context, lobbyID, n int) ([]Question, error)
	// WipeLobbyHistory forgets what lobbyID has seen, e.g. after a game ends.
	WipeLobbyHistory(ctx context.Context, lobbyID int) error
	// DestroyLobbyHistory drops every trace of lobbyID once the lobby is deleted.
	DestroyLobbyHistory(ctx context.Context, lobbyID int) error
	InsertQuestion(ctx context.Context, q Question) (int64, error)
	Close() error
}

// Accepts reports whether response matches one of the valid answers once
// both are sanitized.
func (q Question) Accepts(response string) bool {
	s := Sanitize(response)
	if s == "" {
		return false
	}
	for _, a := range q.Answers {
		if Sanitize(a) == s {
			return true
		}
	}
	return false
}

// DisplayAnswer is the answer revealed once the round is over.
func (q Question) DisplayAnswer() string {
	if len(q.Answers) == 0 {
		return ""
	}
	return q.Answers[0]
}

// Validate checks a question before it is inserted.
func (q Question) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return errors.New("question text is empty")
	}
	if len(q.Text) > protocol.MaxQuestionLength {
		return fmt.Errorf("question text is %d bytes, max %d", len(q.Text), protocol.MaxQuestionLength)
	}
	if q.SupportType != protocol.SupportText && q.SupportType != protocol.SupportImage {
		return fmt.Errorf("unsupported support type %d", q.SupportType)
	}
	valid := 0
	for _, a := range q.Answers {
		if Sanitize(a) != "" {
			valid++
		}
	}
	if valid == 0 {
		return ErrNoAnswers
	}
	return nil
}

// MaxSupportLength is the largest support that still fits a QuestionSent frame.
const MaxSupportLength = protocol.MaxPayloadLength - 12 - 4 - protocol.MaxQuestionLength - 1

// LoadSupport returns the bytes sent as the question support. Text support
// is sent as is; image support is read from disk.
func (q Question) LoadSupport() ([]byte, error) {
	if q.SupportType != protocol.SupportImage {
		if len(q.Support) > MaxSupportLength {
			return nil, fmt.Errorf("%w: %d bytes", ErrSupportTooLarge, len(q.Support))
		}
		return []byte(q.Support), nil
	}

	info, err := os.Stat(q.Support)
	if err != nil {
		return nil, fmt.Errorf("stat image %q: %w", q.Support, err)
	}
	if info.Size() > MaxSupportLength {
		return nil, fmt.Errorf("%w: image %q is %d bytes", ErrSupportTooLarge, q.Support, info.Size())
	}
	data, err := os.ReadFile(q.Support)
	if err != nil {
		return nil, fmt.Errorf("read image %q: %w", q.Support, err)
	}
	if len(data) > MaxSupportLength {
		return nil, fmt.Errorf("%w: image %q is %d bytes", ErrSupportTooLarge, q.Support, len(data))
	}
	return data, nil
}

// ParseAnswers splits a comma separated answer list, trimming whitespace
// and dropping empty entries.
func ParseAnswers(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

// JoinAnswers is the inverse of ParseAnswers.
func JoinAnswers(answers []string) string {
	clean := make([]string, 0, len(answers))
	for _, a := range answers {
		if a = strings.TrimSpace(strings.ReplaceAll(a, ",", " ")); a != "" {
			clean = append(clean, a)
		}
	}
	return strings.Join(clean, ",")
}
