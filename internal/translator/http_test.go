package translator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, Config) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, Config{APIKey: "test-key", Model: "gpt-4o-mini", BaseURL: srv.URL}
}

func chatContentResponse(t *testing.T, content string) []byte {
	t.Helper()
	resp := chatResponse{}
	resp.Choices = []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}{{}}
	resp.Choices[0].Message.Content = content
	b, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	return b
}

func TestHTTPClientTranslateHappyPath(t *testing.T) {
	srv, cfg := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(chatContentResponse(t, `["打开门","关闭门"]`))
	})
	_ = srv
	client := NewHTTPClient(cfg)

	out, err := client.Translate(context.Background(), []string{"Open the door", "Close the door"}, "", "中文")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if len(out) != 2 || out[0] != "打开门" || out[1] != "关闭门" {
		t.Fatalf("Translate output = %v", out)
	}
}

func TestHTTPClientStripsCodeFence(t *testing.T) {
	srv, cfg := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(chatContentResponse(t, "```json\n[\"打开门\"]\n```"))
	})
	_ = srv
	client := NewHTTPClient(cfg)

	out, err := client.Translate(context.Background(), []string{"Open the door"}, "", "中文")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if len(out) != 1 || out[0] != "打开门" {
		t.Fatalf("Translate output = %v", out)
	}
}

func TestHTTPClientSplitsOnDesync(t *testing.T) {
	calls := 0
	srv, cfg := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			// First call (whole batch of 2) returns only one line,
			// forcing the desync split-retry path.
			w.Write(chatContentResponse(t, `["只有一行"]`))
			return
		}
		w.Write(chatContentResponse(t, `["一"]`))
	})
	_ = srv
	client := NewHTTPClient(cfg)

	out, err := client.Translate(context.Background(), []string{"One", "Two"}, "", "中文")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 outputs after split-retry, got %v", out)
	}
}

func TestHTTPClientPropagatesAuthError(t *testing.T) {
	srv, cfg := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error","code":"invalid_api_key"}}`))
	})
	_ = srv
	client := NewHTTPClient(cfg)

	_, err := client.Translate(context.Background(), []string{"Open the door"}, "", "中文")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !IsAuthError(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestStripCodeFence(t *testing.T) {
	cases := map[string]string{
		"[\"a\"]":                      `["a"]`,
		"```json\n[\"a\"]\n```":        `["a"]`,
		"```\n[\"a\"]\n```":            `["a"]`,
		"  [\"a\"]  ":                  `["a"]`,
	}
	for in, want := range cases {
		if got := stripCodeFence(in); got != want {
			t.Errorf("stripCodeFence(%q) = %q, want %q", in, got, want)
		}
	}
}
