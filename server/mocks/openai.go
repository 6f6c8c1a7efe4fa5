// Package mocks provides test doubles for the text generation provider and the config watcher.
package mocks

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// ChatPath is the chat completions route under BaseURL.
const ChatPath = "/v1/chat/completions"

// ChatRequest is a chat completion request body as decoded from the wire.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
}

// ChatMessage is one entry of ChatRequest.Messages.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Responder writes the reply to one chat completion request.
type Responder func(w http.ResponseWriter, r *http.Request, req ChatRequest)

// OpenAIServer is an OpenAI-compatible HTTP server that records every chat
// completion request it receives.
//
//	srv := NewOpenAIServer(t, Reply(" Dear Sir, ... "))
//	cfg.LLM.BaseURL = srv.BaseURL()
type OpenAIServer struct {
	*httptest.Server

	mu       sync.Mutex
	respond  Responder
	requests []ChatRequest
	headers  []http.Header
}

// NewOpenAIServer starts a server answering with respond. It is closed when
// the test ends.
func NewOpenAIServer(t testing.TB, respond Responder) *OpenAIServer {
	t.Helper()
	s := &OpenAIServer{respond: respond}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

func (s *OpenAIServer) serve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Path != ChatPath {
		ReplyError(http.StatusNotFound, "invalid_request_error", "Unknown request URL")(w, r, ChatRequest{})
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ReplyError(http.StatusBadRequest, "invalid_request_error", "could not parse the JSON body")(w, r, req)
		return
	}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.headers = append(s.headers, r.Header.Clone())
	respond := s.respond
	s.mu.Unlock()

	if respond == nil {
		respond = Reply("")
	}
	respond(w, r, req)
}

// BaseURL is the API root to configure clients with.
func (s *OpenAIServer) BaseURL() string {
	return s.URL + "/v1"
}

// SetResponder replaces the reply for subsequent requests.
func (s *OpenAIServer) SetResponder(respond Responder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.respond = respond
}

// Calls returns the number of chat completion requests received so far.
func (s *OpenAIServer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// LastRequest returns the most recent request body and its headers. ok is
// false if nothing was received.
func (s *OpenAIServer) LastRequest() (req ChatRequest, header http.Header, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return ChatRequest{}, nil, false
	}
	n := len(s.requests) - 1
	return s.requests[n], s.headers[n], true
}

// Reply answers with a single assistant choice holding content.
func Reply(content string) Responder {
	return func(w http.ResponseWriter, _ *http.Request, req ChatRequest) {
		writeJSON(w, http.StatusOK, map[string]any{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": time.Now().Unix(),
			"model":   req.Model,
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
		})
	}
}

// ReplyError answers with an OpenAI error object.
func ReplyError(status int, errType, message string) Responder {
	return func(w http.ResponseWriter, _ *http.Request, _ ChatRequest) {
		writeJSON(w, status, map[string]any{
			"error": map[string]any{
				"message": message,
				"type":    errType,
				"param":   nil,
				"code":    nil,
			},
		})
	}
}

// ReplyRaw answers with an arbitrary body.
func ReplyRaw(status int, contentType, body string) Responder {
	return func(w http.ResponseWriter, _ *http.Request, _ ChatRequest) {
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

// Hang never answers; it returns once the client gives up.
func Hang() Responder {
	return func(_ http.ResponseWriter, r *http.Request, _ ChatRequest) {
		select {
		case <-r.Context().Done():
		case <-time.After(10 * time.Second):
		}
	}
}

// Sequence answers the i-th request with responders[i]; the last responder
// repeats once the list is exhausted.
func Sequence(responders ...Responder) Responder {
	var mu sync.Mutex
	next := 0
	return func(w http.ResponseWriter, r *http.Request, req ChatRequest) {
		mu.Lock()
		i := next
		if next < len(responders)-1 {
			next++
		}
		mu.Unlock()
		responders[i](w, r, req)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
