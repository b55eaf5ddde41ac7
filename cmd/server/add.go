// cmd/server/add.go
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jason-s-yu/popsauce/internal/protocol"
	"github.com/jason-s-yu/popsauce/internal/questions"
)

const usage = `POPSAUCE-SERVER - Usage:
   - popsauce-server: starts the server
   - popsauce-server help: prints this help message
   - popsauce-server add [txt/img]: adds a new question to the database.
             This command starts a menu to add a question.
             'txt' for text style support and 'img' for image format support.

Configuration is read from the environment (and .env):
   PORT, HTTP_PORT, LOG_LEVEL, MAX_PLAYERS, MAX_LOBBIES, MAX_PLAYERS_PER_LOBBY,
   QUESTIONS_BATCH, POINTS_TO_WIN, TIME_BEFORE_GAME_STARTS, TIME_TO_ANSWER,
   TIME_INBETWEEN_QUESTIONS, QUESTION_STORE (sqlite|postgres|memory),
   QUESTIONS_DB, REDIS_ADDR, REDIS_DB, HISTORIAN_QUEUE_NAME
`

var errUsage = errors.New("usage: popsauce-server add txt|img")

// addQuestion prompts on in for a question of the given kind and inserts it
// into store.
func addQuestion(ctx context.Context, kind string, in io.Reader, out io.Writer, store questions.Store) (int64, error) {
	var q questions.Question
	switch kind {
	case "txt":
		q.SupportType = protocol.SupportText
	case "img":
		q.SupportType = protocol.SupportImage
	default:
		return 0, errUsage
	}

	r := bufio.NewReader(in)
	prompt := func(label string) (string, error) {
		fmt.Fprint(out, label)
		line, err := r.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", fmt.Errorf("read %q: %w", strings.TrimSpace(label), err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Fprintln(out, "Adding a new question to the database:")
	var err error
	if q.Text, err = prompt("Enter the question you want to add: "); err != nil {
		return 0, err
	}
	supportLabel := "Enter the text support to the question: "
	if q.SupportType == protocol.SupportImage {
		supportLabel = "Enter the path to the image you want to use as support: "
	}
	if q.Support, err = prompt(supportLabel); err != nil {
		return 0, err
	}
	answers, err := prompt("Enter the possible answers to the question (separated by a comma): ")
	if err != nil {
		return 0, err
	}
	q.Answers = questions.ParseAnswers(answers)

	if err := q.Validate(); err != nil {
		return 0, err
	}
	if _, err := q.LoadSupport(); err != nil {
		return 0, err
	}

	id, err := store.InsertQuestion(ctx, q)
	if err != nil {
		return 0, err
	}
	fmt.Fprintf(out, "Question %d added.\n", id)
	return id, nil
}
