package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/iksnae/chatstream/internal"
	"github.com/iksnae/chatstream/internal/llm"
	"github.com/iksnae/chatstream/internal/metrics"
	"github.com/iksnae/chatstream/internal/stream"
)

type chatRequest struct {
	Messages json.RawMessage `json:"messages"`
}

type enhancerRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok", "model": s.model})
}

// handleChat streams the model's reply to a transcript as frames
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages is required")
		return
	}

	messages, err := internal.ParseIncomingMessages(req.Messages)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(messages) == 0 {
		writeError(w, http.StatusBadRequest, "no user or assistant messages")
		return
	}

	prompt := toLLMMessages(messages)
	log := s.logger.With().Str("route", chatRoute).Int("messages", len(prompt)).Logger()

	var (
		enc        *stream.Encoder
		completion strings.Builder
	)
	// headers are sent with the first frame so upstream failures can still be a 502
	start := func() {
		if enc != nil {
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("X-Vercel-AI-Data-Stream", "v1")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
		enc = stream.NewEncoder(w)
	}

	err = s.upstream.ChatStream(r.Context(), s.model, SystemPrompt, s.maxTokens, prompt, func(e llm.StreamEvent) {
		switch e.Type {
		case "content":
			start()
			completion.WriteString(e.Content)
			if err := enc.Text(e.Content); err != nil {
				log.Debug().Err(err).Msg("client write failed")
			}
		case "done":
			start()
			enc.Finish(finishInfo(e, prompt, completion.String()))
		}
	})
	if err == nil {
		return
	}
	if r.Context().Err() != nil {
		log.Debug().Msg("client went away")
		return
	}

	log.Error().Err(err).Msg("upstream failed")
	if enc == nil {
		writeError(w, http.StatusBadGateway, upstreamMessage(err))
		return
	}
	enc.Error(upstreamMessage(err))
}

// handleEnhancer streams the rewritten prompt as plain text
func (s *Server) handleEnhancer(w http.ResponseWriter, r *http.Request) {
	var req enhancerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, internal.ErrEmptyInput.Error())
		return
	}

	prompt := []llm.Message{{Role: string(internal.RoleUser), Content: EnhancerPrompt(req.Message)}}

	pr, pw := io.Pipe()
	errc := make(chan error, 1)
	go func() {
		enc := stream.NewEncoder(pw)
		var completion strings.Builder
		err := s.upstream.ChatStream(r.Context(), s.model, "", s.maxTokens, prompt, func(e llm.StreamEvent) {
			switch e.Type {
			case "content":
				completion.WriteString(e.Content)
				enc.Text(e.Content)
			case "done":
				enc.Finish(finishInfo(e, prompt, completion.String()))
			}
		})
		if err != nil {
			enc.Error(upstreamMessage(err))
		}
		errc <- err
		pw.Close()
	}()

	wrote := false
	text := stream.TextOnly(pr)
	buf := make([]byte, 4096)
	for {
		n, err := text.Read(buf)
		if n > 0 {
			if !wrote {
				w.Header().Set("Content-Type", "text/plain; charset=utf-8")
				w.WriteHeader(http.StatusOK)
				wrote = true
			}
			w.Write(buf[:n])
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
		if err != nil {
			break
		}
	}

	if err := <-errc; err != nil && !wrote && r.Context().Err() == nil {
		s.logger.Error().Err(err).Str("route", enhancerRoute).Msg("upstream failed")
		writeError(w, http.StatusBadGateway, upstreamMessage(err))
	}
}

// finishInfo builds the finish frame, estimating usage the upstream did not report
func finishInfo(e llm.StreamEvent, prompt []llm.Message, completion string) stream.FinishInfo {
	reason := e.FinishReason
	if reason == "" {
		reason = "stop"
	}

	var usage stream.Usage
	if e.Usage != nil {
		usage.PromptTokens = e.Usage.PromptTokens
		usage.CompletionTokens = e.Usage.CompletionTokens
	} else {
		usage.PromptTokens = llm.EstimateMessages(prompt)
		usage.CompletionTokens = llm.EstimateTokensSimple(completion)
	}
	metrics.UpstreamTokens.WithLabelValues("prompt").Add(float64(usage.PromptTokens))
	metrics.UpstreamTokens.WithLabelValues("completion").Add(float64(usage.CompletionTokens))

	return stream.FinishInfo{FinishReason: reason, Usage: usage}
}

func toLLMMessages(messages []internal.ChatMessage) []llm.Message {
	out := make([]llm.Message, len(messages))
	for i, m := range messages {
		out[i] = llm.Message{Role: string(m.Role), Content: m.Content}
	}
	return out
}

// upstreamMessage hides transport details of the upstream from clients
func upstreamMessage(err error) string {
	switch {
	case errors.Is(err, llm.ErrRequestFailed):
		return "upstream model request failed"
	case errors.Is(err, llm.ErrStreamError):
		return err.Error()
	default:
		return "upstream model unavailable"
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
