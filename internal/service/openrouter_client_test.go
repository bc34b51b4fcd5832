package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" || r.Method != http.MethodGet {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected Authorization header: %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(`{"data":[
			{"id":"openai/gpt-4o","name":"OpenAI: GPT-4o","context_length":128000},
			{"id":"meta-llama/llama-3-8b:free","name":"Meta: Llama 3 8B (free)","context_length":8192}
		]}`)); err != nil {
			t.Errorf("write response: %v", err)
		}
	}))
	defer srv.Close()

	client := NewOpenRouterClient(srv.URL, "test-key", 0.7, 1000)

	models, err := client.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels returned error: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("expected 2 models, got %d", len(models))
	}
	if models[0].ID != "openai/gpt-4o" || models[0].ContextLength != 128000 {
		t.Fatalf("unexpected first model: %+v", models[0])
	}
}

func TestListModelsErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"upstream 500", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}},
		{"invalid json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("not json"))
		}},
		{"missing data list", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"something_else":[]}`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			client := NewOpenRouterClient(srv.URL, "test-key", 0.7, 1000)
			if _, err := client.ListModels(context.Background()); !errors.Is(err, ErrCatalogUnavailable) {
				t.Fatalf("expected ErrCatalogUnavailable, got %v", err)
			}
		})
	}
}

func TestListModelsEmptyCatalogIsValid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	client := NewOpenRouterClient(srv.URL, "test-key", 0.7, 1000)
	models, err := client.ListModels(context.Background())
	if err != nil {
		t.Fatalf("an empty data list is a valid catalog, got error: %v", err)
	}
	if len(models) != 0 {
		t.Fatalf("expected no models, got %d", len(models))
	}
}

func TestCreateChatCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}

		var req chatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "openai/gpt-4o" {
			t.Errorf("unexpected model: %q", req.Model)
		}
		if req.Temperature != 0.7 || req.MaxTokens != 1000 {
			t.Errorf("unexpected sampling params: %v / %v", req.Temperature, req.MaxTokens)
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("unexpected messages: %v", req.Messages)
		}

		w.Write([]byte(`{
			"choices":[{"message":{"role":"assistant","content":"Hi!"}}],
			"usage":{"total_tokens":17}
		}`))
	}))
	defer srv.Close()

	client := NewOpenRouterClient(srv.URL, "test-key", 0.7, 1000)

	result, err := client.CreateChatCompletion(context.Background(), "openai/gpt-4o", []ChatCompletionMessage{
		{Role: "user", Content: "Hello"},
	})
	if err != nil {
		t.Fatalf("CreateChatCompletion returned error: %v", err)
	}
	if result.Content != "Hi!" {
		t.Fatalf("unexpected content: %q", result.Content)
	}
	if result.TokensUsed != 17 {
		t.Fatalf("unexpected token usage: %d", result.TokensUsed)
	}
	if result.ResponseTimeMs < 0 {
		t.Fatalf("negative latency: %d", result.ResponseTimeMs)
	}
}

func TestCreateChatCompletionEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[],"usage":{"total_tokens":0}}`))
	}))
	defer srv.Close()

	client := NewOpenRouterClient(srv.URL, "test-key", 0.7, 1000)
	if _, err := client.CreateChatCompletion(context.Background(), "openai/gpt-4o", nil); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestCreateChatCompletionUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewOpenRouterClient(srv.URL, "test-key", 0.7, 1000)
	_, err := client.CreateChatCompletion(context.Background(), "openai/gpt-4o", nil)
	if err == nil {
		t.Fatal("expected error for upstream failure")
	}
}
