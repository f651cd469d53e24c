package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestDeepSeekClient_Chat(t *testing.T) {
	var gotBody map[string]any
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected Authorization header %q", got)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"1","object":"chat.completion","created":1,"model":"deepseek-chat",
			"choices":[{"index":0,"message":{"role":"assistant","content":"  a minimalist fox logo  "},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":3,"completion_tokens":5,"total_tokens":8}}`)
	})

	client := NewDeepSeekClient(ClientConfig{APIKey: "test-key", BaseURL: srv.URL})
	got, err := client.Chat(context.Background(), ChatRequest{SystemPrompt: "be brief", UserPrompt: "fox"})
	if err != nil {
		t.Fatalf("Chat error: %v", err)
	}
	if got != "a minimalist fox logo" {
		t.Errorf("unexpected content %q", got)
	}
	if gotBody["model"] != DefaultDeepSeekModel {
		t.Errorf("expected model %s, got %v", DefaultDeepSeekModel, gotBody["model"])
	}
	messages, _ := gotBody["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("expected system and user messages, got %v", gotBody["messages"])
	}
}

func TestDeepSeekClient_RetriesThreeTimes(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, `{"error":{"message":"overloaded","type":"server_error"}}`)
	})

	client := NewDeepSeekClient(ClientConfig{APIKey: "k", BaseURL: srv.URL})
	client.SetRetryDelay(time.Millisecond)

	_, err := client.Chat(context.Background(), ChatRequest{UserPrompt: "x"})
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected *UpstreamError, got %v", err)
	}
	if upstream.StatusCode != http.StatusBadGateway || upstream.Message != "overloaded" {
		t.Errorf("unexpected upstream error %+v", upstream)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
}

type failingDoer struct {
	err error
}

func (d failingDoer) Do(*http.Request) (*http.Response, error) {
	return nil, d.err
}

func TestProviders_TransportFailureIsUpstreamError(t *testing.T) {
	ctx := context.Background()
	netErr := errors.New("dial tcp: connection refused")
	cfg := ClientConfig{APIKey: "k", BaseURL: "http://upstream.invalid"}

	deepseek := NewDeepSeekClient(cfg)
	deepseek.SetHTTPClient(failingDoer{netErr})
	deepseek.SetRetryDelay(time.Millisecond)
	siliconflow := NewSiliconFlowClient(cfg)
	siliconflow.SetHTTPClient(failingDoer{netErr})
	zhipu := NewZhipuClient(cfg)
	zhipu.SetHTTPClient(failingDoer{netErr})
	removebg := NewRemoveBgClient(cfg)
	removebg.SetHTTPClient(failingDoer{netErr})

	tests := []struct {
		name string
		call func() error
	}{
		{"deepseek", func() error { _, err := deepseek.Chat(ctx, ChatRequest{UserPrompt: "x"}); return err }},
		{"siliconflow", func() error { _, err := siliconflow.Generate(ctx, ImageRequest{Prompt: "x"}); return err }},
		{"zhipu", func() error { _, err := zhipu.Generate(ctx, ImageRequest{Prompt: "x"}); return err }},
		{"remove.bg", func() error { _, err := removebg.RemoveBackground(ctx, []byte{1}, "a.png"); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			var upstream *UpstreamError
			if !errors.As(err, &upstream) {
				t.Fatalf("expected *UpstreamError, got %v", err)
			}
			if upstream.StatusCode != 0 {
				t.Errorf("expected status 0 for a transport failure, got %d", upstream.StatusCode)
			}
			if !errors.Is(err, netErr) {
				t.Errorf("expected the transport error to be wrapped, got %v", err)
			}
			if !strings.Contains(err.Error(), "request failed") {
				t.Errorf("unexpected message %q", err.Error())
			}
		})
	}
}

func TestSiliconFlowClient_UndecodableResponse(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>gateway</html>")
	})
	client := NewSiliconFlowClient(ClientConfig{APIKey: "k", BaseURL: srv.URL})

	_, err := client.Generate(context.Background(), ImageRequest{Prompt: "x"})
	var upstream *UpstreamError
	if !errors.As(err, &upstream) || upstream.StatusCode != http.StatusOK {
		t.Fatalf("expected *UpstreamError with status 200, got %v", err)
	}
}

func TestProviders_MissingKey(t *testing.T) {
	ctx := context.Background()
	if _, err := NewDeepSeekClient(ClientConfig{}).Chat(ctx, ChatRequest{UserPrompt: "x"}); !errors.Is(err, ErrAPIKeyMissing) {
		t.Errorf("deepseek: expected ErrAPIKeyMissing, got %v", err)
	}
	if _, err := NewSiliconFlowClient(ClientConfig{}).Generate(ctx, ImageRequest{Prompt: "x"}); !errors.Is(err, ErrAPIKeyMissing) {
		t.Errorf("siliconflow: expected ErrAPIKeyMissing, got %v", err)
	}
	if _, err := NewZhipuClient(ClientConfig{}).Generate(ctx, ImageRequest{Prompt: "x"}); !errors.Is(err, ErrAPIKeyMissing) {
		t.Errorf("zhipu: expected ErrAPIKeyMissing, got %v", err)
	}
	if _, err := NewRemoveBgClient(ClientConfig{APIKey: "  "}).RemoveBackground(ctx, []byte{1}, "a.png"); !errors.Is(err, ErrAPIKeyMissing) {
		t.Errorf("remove.bg: expected ErrAPIKeyMissing, got %v", err)
	}
}

func TestSiliconFlowClient_Generate(t *testing.T) {
	var got siliconFlowRequest
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/images/generations" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sf" {
			t.Errorf("unexpected Authorization header %q", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = io.WriteString(w, `{"images":[{"url":"https://img.example/1.png"},{"url":"https://img.example/2.png"}],"seed":42}`)
	})

	client := NewSiliconFlowClient(ClientConfig{APIKey: "sf", BaseURL: srv.URL + "/"})
	images, err := client.Generate(context.Background(), ImageRequest{
		Prompt:         "a lighthouse",
		NegativePrompt: "text",
		Count:          2,
	})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if len(images) != 2 || images[1].URL != "https://img.example/2.png" || images[0].Seed != 42 {
		t.Errorf("unexpected images %+v", images)
	}
	if got.Model != DefaultSiliconFlowModel || got.ImageSize != DefaultImageSize || got.BatchSize != 2 || got.NegativePrompt != "text" {
		t.Errorf("unexpected request %+v", got)
	}
}

func TestSiliconFlowClient_UpstreamError(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"code":50603,"message":"rate limited"}`)
	})
	client := NewSiliconFlowClient(ClientConfig{APIKey: "sf", BaseURL: srv.URL})
	_, err := client.Generate(context.Background(), ImageRequest{Prompt: "x"})
	var upstream *UpstreamError
	if !errors.As(err, &upstream) || upstream.StatusCode != http.StatusTooManyRequests || upstream.Message != "rate limited" {
		t.Fatalf("expected rate limited upstream error, got %v", err)
	}
}

func TestSiliconFlowClient_EmptyResult(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"images":[]}`)
	})
	client := NewSiliconFlowClient(ClientConfig{APIKey: "sf", BaseURL: srv.URL})
	var upstream *UpstreamError
	if _, err := client.Generate(context.Background(), ImageRequest{Prompt: "x"}); !errors.As(err, &upstream) {
		t.Fatalf("expected *UpstreamError, got %v", err)
	}
}

func TestZhipuClient_Generate(t *testing.T) {
	var got map[string]any
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/images/generations" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"created":1,"data":[{"url":"https://zhipu.example/a.png"}]}`)
	})

	client := NewZhipuClient(ClientConfig{APIKey: "zp", BaseURL: srv.URL})
	images, err := client.Generate(context.Background(), ImageRequest{Prompt: "a teapot", Size: "768x1344"})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if len(images) != 1 || images[0].URL != "https://zhipu.example/a.png" {
		t.Errorf("unexpected images %+v", images)
	}
	if got["model"] != DefaultZhipuModel || got["size"] != "768x1344" {
		t.Errorf("unexpected request %v", got)
	}
}

func TestZhipuClient_UpstreamError(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"code":"1301","message":"sensitive content"}}`)
	})
	client := NewZhipuClient(ClientConfig{APIKey: "zp", BaseURL: srv.URL})
	_, err := client.Generate(context.Background(), ImageRequest{Prompt: "x"})
	var upstream *UpstreamError
	if !errors.As(err, &upstream) || upstream.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 upstream error, got %v", err)
	}
	if !strings.Contains(upstream.Message, "sensitive") {
		t.Errorf("unexpected message %q", upstream.Message)
	}
}

func TestRemoveBgClient_RemoveBackground(t *testing.T) {
	cutout := []byte("\x89PNG\r\n\x1a\nfake")
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/removebg" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "rb" {
			t.Errorf("unexpected X-Api-Key %q", r.Header.Get("X-Api-Key"))
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.FormValue("size") != "auto" {
			t.Errorf("expected size=auto, got %q", r.FormValue("size"))
		}
		file, header, err := r.FormFile("image_file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if string(data) != "input" || header.Filename != "cat.jpg" {
			t.Errorf("unexpected upload %q named %q", data, header.Filename)
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(cutout)
	})

	client := NewRemoveBgClient(ClientConfig{APIKey: "rb", BaseURL: srv.URL})
	got, err := client.RemoveBackground(context.Background(), []byte("input"), "cat.jpg")
	if err != nil {
		t.Fatalf("RemoveBackground error: %v", err)
	}
	if string(got) != string(cutout) {
		t.Errorf("unexpected cutout %q", got)
	}
}

func TestRemoveBgClient_ErrorTitles(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = io.WriteString(w, `{"errors":[{"title":"Insufficient credits"}]}`)
	})
	client := NewRemoveBgClient(ClientConfig{APIKey: "rb", BaseURL: srv.URL})
	_, err := client.RemoveBackground(context.Background(), []byte("x"), "")
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected *UpstreamError, got %v", err)
	}
	if upstream.StatusCode != http.StatusPaymentRequired || upstream.Message != "Insufficient credits" {
		t.Errorf("unexpected upstream error %+v", upstream)
	}
}

func TestClientConfig_withDefaults(t *testing.T) {
	cfg := ClientConfig{APIKey: " key ", BaseURL: "https://x.example/v1/"}.withDefaults("https://default", "m", time.Minute)
	if cfg.APIKey != "key" || cfg.BaseURL != "https://x.example/v1" || cfg.Model != "m" || cfg.Timeout != time.Minute {
		t.Errorf("unexpected config %+v", cfg)
	}
}
