// internal/questions/questions_test.go
package questions

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jason-s-yu/popsauce/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	cases := map[string]string{
		"Clöclo!":            "cloclo",
		"cloclo":             "cloclo",
		"  CLOCLO ":          "cloclo",
		"Claude François":    "claudefrancois",
		"Ça va, Señor Ýves?": "cavasenoryves",
		"ÿ":                  "y",
		"àéîõü":              "aeiou",
		"R2-D2":              "r2d2",
		"!!!":                "",
		"":                   "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Sanitize(in), "Sanitize(%q)", in)
	}
}

func TestAccepts(t *testing.T) {
	q := Question{Answers: []string{"Claude François", "Cloclo"}}

	assert.True(t, q.Accepts("claude francois"))
	assert.True(t, q.Accepts("CLÖCLO!"))
	assert.False(t, q.Accepts("Johnny"))
	assert.False(t, q.Accepts("   "), "blank responses never match")
	assert.Equal(t, "Claude François", q.DisplayAnswer())
}

func TestParseAndJoinAnswers(t *testing.T) {
	assert.Equal(t, []string{"Paris", "paname"}, ParseAnswers(" Paris, ,paname ,"))
	assert.Nil(t, ParseAnswers(""))
	assert.Equal(t, "Paris,paname", JoinAnswers([]string{"Paris ", "", "paname"}))
}

func TestValidate(t *testing.T) {
	ok := Question{Text: "Capital of France?", Answers: []string{"Paris"}}
	require.NoError(t, ok.Validate())

	noAnswers := ok
	noAnswers.Answers = []string{"?!"}
	assert.ErrorIs(t, noAnswers.Validate(), ErrNoAnswers)

	long := ok
	long.Text = strings.Repeat("x", protocol.MaxQuestionLength+1)
	assert.Error(t, long.Validate())

	empty := ok
	empty.Text = "  "
	assert.Error(t, empty.Validate())
}

func TestLoadSupport(t *testing.T) {
	text := Question{SupportType: protocol.SupportText, Support: "hint"}
	data, err := text.LoadSupport()
	require.NoError(t, err)
	assert.Equal(t, []byte("hint"), data)

	dir := t.TempDir()
	img := filepath.Join(dir, "flag.png")
	require.NoError(t, os.WriteFile(img, []byte{0x89, 'P', 'N', 'G', 0}, 0o644))

	q := Question{SupportType: protocol.SupportImage, Support: img}
	data, err = q.LoadSupport()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G', 0}, data)

	big := filepath.Join(dir, "big.bin")
	require.NoError(t, os.WriteFile(big, make([]byte, MaxSupportLength+1), 0o644))
	_, err = Question{SupportType: protocol.SupportImage, Support: big}.LoadSupport()
	assert.ErrorIs(t, err, ErrSupportTooLarge)

	_, err = Question{SupportType: protocol.SupportImage, Support: filepath.Join(dir, "missing.png")}.LoadSupport()
	assert.Error(t, err)
}

func seedQuestions(n int) []Question {
	qs := make([]Question, n)
	for i := range qs {
		qs[i] = Question{Text: "question " + string(rune('A'+i)), Answers: []string{"answer"}}
	}
	return qs
}

// exerciseStore runs the behavior every Store backend must share.
func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()
	for _, q := range seedQuestions(5) {
		_, err := s.InsertQuestion(ctx, q)
		require.NoError(t, err)
	}

	_, err := s.InsertQuestion(ctx, Question{Text: "no answers"})
	require.ErrorIs(t, err, ErrNoAnswers)

	first, err := s.RandomQuestions(ctx, 1, 3)
	require.NoError(t, err)
	require.Len(t, first, 3)

	second, err := s.RandomQuestions(ctx, 1, 3)
	require.NoError(t, err)
	require.Len(t, second, 2, "only unseen questions are served")

	seen := map[int64]bool{}
	for _, q := range append(first, second...) {
		assert.False(t, seen[q.ID], "question %d served twice", q.ID)
		seen[q.ID] = true
		assert.Equal(t, []string{"answer"}, q.Answers)
	}

	exhausted, err := s.RandomQuestions(ctx, 1, 3)
	require.NoError(t, err)
	assert.Empty(t, exhausted)

	// other lobbies are unaffected
	other, err := s.RandomQuestions(ctx, 2, 10)
	require.NoError(t, err)
	assert.Len(t, other, 5)

	require.NoError(t, s.WipeLobbyHistory(ctx, 1))
	again, err := s.RandomQuestions(ctx, 1, 10)
	require.NoError(t, err)
	assert.Len(t, again, 5)

	require.NoError(t, s.DestroyLobbyHistory(ctx, 2))
	again, err = s.RandomQuestions(ctx, 2, 10)
	require.NoError(t, err)
	assert.Len(t, again, 5)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "db", DefaultSQLitePath))
	if err != nil && strings.Contains(err.Error(), "CGO_ENABLED=0") {
		t.Skip("sqlite3 driver needs cgo")
	}
	require.NoError(t, err)
	defer s.Close()

	exerciseStore(t, s)

	// image support round trips as a path
	id, err := s.InsertQuestion(context.Background(), Question{
		Text:        "Which flag?",
		SupportType: protocol.SupportImage,
		Support:     "/srv/img/flag.png",
		Answers:     []string{"Japan", "Nippon"},
	})
	require.NoError(t, err)
	got, err := s.RandomQuestions(context.Background(), 9, 10)
	require.NoError(t, err)
	var found bool
	for _, q := range got {
		if q.ID == id {
			found = true
			assert.Equal(t, protocol.SupportImage, q.SupportType)
			assert.Equal(t, "/srv/img/flag.png", q.Support)
			assert.Equal(t, []string{"Japan", "Nippon"}, q.Answers)
		}
	}
	assert.True(t, found)
}
