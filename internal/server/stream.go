package server

import (
	"fmt"
	"net/http"

	json "github.com/goccy/go-json"
)

// sseDone terminates every successful stream.
const sseDone = "[DONE]"

// sseStream writes Server-Sent Event frames and flushes after each one.
// The first write error sticks and silences the rest of the stream.
type sseStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	err     error
}

// startSSE sets the event-stream headers. It fails when w cannot flush.
func startSSE(w http.ResponseWriter) (*sseStream, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &sseStream{w: w, flusher: flusher}, true
}

// chunk emits a raw text chunk as data: {"content": chunk}.
func (s *sseStream) chunk(text string) {
	s.send("", map[string]string{"content": text})
}

// event emits a named event whose data is v encoded as JSON.
func (s *sseStream) event(name string, v any) {
	s.send(name, v)
}

// fail emits an error event.
func (s *sseStream) fail(msg string) {
	s.send("error", errorResponse{Error: msg})
}

// done emits the terminating sentinel.
func (s *sseStream) done() {
	s.write("data: " + sseDone + "\n\n")
}

func (s *sseStream) send(name string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		s.err = fmt.Errorf("server: encode sse frame: %w", err)
		return
	}
	frame := "data: " + string(b) + "\n\n"
	if name != "" {
		frame = "event: " + name + "\n" + frame
	}
	s.write(frame)
}

func (s *sseStream) write(frame string) {
	if s.err != nil {
		return
	}
	if _, err := fmt.Fprint(s.w, frame); err != nil {
		s.err = err
		return
	}
	s.flusher.Flush()
}
