package aigen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hazyhaar/applyd/question"
)

func newTestServer(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path: got %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth: got %q", got)
		}
		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(body.Messages) != 2 || body.Messages[0].Role != "system" {
			t.Errorf("messages: %+v", body.Messages)
		}

		w.WriteHeader(status)
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": content}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := New(Config{BaseURL: srv.URL, APIKey: "test-key"})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestAnswer_ReturnsContent(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, "8 years")
	defer srv.Close()

	c := newTestClient(t, srv)
	got, err := c.Answer(context.Background(), "Years of experience?", question.JobContext{
		Title: "Engineer", Company: "Acme",
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != "8 years" {
		t.Fatalf("answer: got %q", got)
	}
}

func TestAnswer_NoAnswerSentinel(t *testing.T) {
	// WHAT: The model's explicit refusal maps to ("", nil) so the caller
	// skips the field rather than treating it as a failure.
	srv := newTestServer(t, http.StatusOK, "NO_ANSWER")
	defer srv.Close()

	c := newTestClient(t, srv)
	got, err := c.Answer(context.Background(), "Security clearance level?", question.JobContext{})
	if err != nil {
		t.Fatal(err)
	}
	if got != "" {
		t.Fatalf("answer: got %q, want empty", got)
	}
}

func TestAnswer_HTTPErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Answer(context.Background(), "Anything?", question.JobContext{})
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("error: got %v", err)
	}
}

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("empty api key must be rejected")
	}
}

func TestBuildPrompt_IncludesContext(t *testing.T) {
	p := buildPrompt("Why this role?", question.JobContext{
		Title: "Backend Engineer", Company: "Acme", Location: "Berlin",
		Description: "We build pipelines.",
	})
	for _, want := range []string{"Why this role?", "Backend Engineer", "Acme", "Berlin", "We build pipelines."} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
