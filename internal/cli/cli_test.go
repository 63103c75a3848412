package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"quiz-checkout-service/internal/config"
	"quiz-checkout-service/internal/domain"
	redisstore "quiz-checkout-service/internal/infra/redis"
)

func TestQuizLoaderServesBuiltInQuizWithoutFile(t *testing.T) {
	loader, err := quizLoader(config.Config{}, nil)
	if err != nil {
		t.Fatalf("quizLoader: %v", err)
	}
	quiz, err := loader.LoadQuiz(context.Background(), relationshipQuiz().ID)
	if err != nil {
		t.Fatalf("load built-in quiz: %v", err)
	}
	if len(quiz.Questions) != len(relationshipQuiz().Questions) {
		t.Fatalf("expected %d questions, got %d", len(relationshipQuiz().Questions), len(quiz.Questions))
	}
	if _, err := loader.LoadQuiz(context.Background(), "unknown"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}

func TestNoticesCmdPrintsQueuedNotices(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	queue := redisstore.NewNoticeQueue(client)
	for _, id := range []string{"cs_1", "cs_2"} {
		if err := queue.Notify(context.Background(), domain.Notice{SessionID: id, Level: "high"}); err != nil {
			t.Fatalf("notify %s: %v", id, err)
		}
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("redis:\n  addr: "+mr.Addr()+"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	var out bytes.Buffer
	cmd := NewNoticesCmd(&path)
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--limit", "1"})
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("execute: %v", err)
	}

	var notices []domain.Notice
	if err := json.Unmarshal(out.Bytes(), &notices); err != nil {
		t.Fatalf("decode output %q: %v", out.String(), err)
	}
	if len(notices) != 1 || notices[0].SessionID != "cs_2" {
		t.Fatalf("expected newest notice cs_2 only, got %+v", notices)
	}
}

func TestNoticesCmdRequiresRedis(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("QUIZ_REDIS_ADDR", "")
	cmd := NewNoticesCmd(&path)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{})
	if err := cmd.ExecuteContext(context.Background()); err == nil {
		t.Fatal("expected an error when redis is not configured")
	}
}
