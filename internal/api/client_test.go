package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestOpenStreamSendsChatRequest(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/stream" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Accept"); got != "text/event-stream" {
			t.Errorf("accept header %q", got)
		}
		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Message == nil || *req.Message != "hello" || req.ThreadID != "t1" {
			t.Errorf("request %#v", req)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "event: done\ndata: success\n\n")
	}))
	defer srv.Close()

	msg := "hello"
	body, err := NewClient(srv.URL, time.Second).OpenStream(context.Background(), ChatRequest{Message: &msg, ThreadID: "t1"})
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(data), "event: done") {
		t.Fatalf("body %q", data)
	}
}

func TestOpenStreamStatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"thread not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).OpenStream(context.Background(), ChatRequest{ThreadID: "missing"})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.Status != http.StatusNotFound {
		t.Fatalf("status %d", statusErr.Status)
	}
	if !strings.Contains(statusErr.Error(), "thread not found") {
		t.Fatalf("message %q", statusErr.Error())
	}
}

func TestChatRequestWireShape(t *testing.T) {
	t.Parallel()

	msg := "hi"
	data, err := json.Marshal(ChatRequest{Message: &msg, ThreadID: "t"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"message":"hi","resume_action":null,"thread_id":"t"}`
	if string(data) != want {
		t.Fatalf("wire %s, want %s", data, want)
	}

	action := "approved"
	data, err = json.Marshal(ChatRequest{ResumeAction: &action, ThreadID: "t"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want = `{"message":null,"resume_action":"approved","thread_id":"t"}`
	if string(data) != want {
		t.Fatalf("wire %s, want %s", data, want)
	}
}

func TestHistory(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/history" {
			t.Errorf("path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("thread_id"); got != "t1" {
			t.Errorf("thread_id %q", got)
		}
		json.NewEncoder(w).Encode([]HistoryMessage{
			{Role: "user", Content: "hi"},
			{Role: "assistant", Content: "hello"},
		})
	}))
	defer srv.Close()

	msgs, err := NewClient(srv.URL, time.Second).History(context.Background(), "t1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(msgs) != 2 || msgs[1].Content != "hello" {
		t.Fatalf("messages %#v", msgs)
	}
}

func TestClearHistory(t *testing.T) {
	t.Parallel()

	var cleared string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/clear" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var req ChatRequest
		json.NewDecoder(r.Body).Decode(&req)
		cleared = req.ThreadID
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := NewClient(srv.URL, time.Second).ClearHistory(context.Background(), "t9"); err != nil {
		t.Fatalf("ClearHistory: %v", err)
	}
	if cleared != "t9" {
		t.Fatalf("cleared %q", cleared)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("path %s", r.URL.Path)
		}
		io.WriteString(w, `{"status":"ok"}`)
	}))
	defer srv.Close()

	if err := NewClient(srv.URL, time.Second).Health(context.Background()); err != nil {
		t.Fatalf("Health: %v", err)
	}
}

func TestHealthRejectsNonOK(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":"degraded"}`)
	}))
	defer srv.Close()

	if err := NewClient(srv.URL, time.Second).Health(context.Background()); err == nil {
		t.Fatalf("expected an error")
	}
}

func TestTranscribe(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcribe" {
			t.Errorf("path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
		} else {
			defer f.Close()
			if hdr.Filename != "note.wav" {
				t.Errorf("filename %q", hdr.Filename)
			}
		}
		if got := r.FormValue("language"); got != "en" {
			t.Errorf("language %q", got)
		}
		json.NewEncoder(w).Encode(Transcription{Text: "remind me tomorrow", Language: "en"})
	}))
	defer srv.Close()

	out, err := NewClient(srv.URL, time.Second).Transcribe(context.Background(), "note.wav", strings.NewReader("RIFFfake"), "en")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if out.Text != "remind me tomorrow" {
		t.Fatalf("text %q", out.Text)
	}
}

func TestTranscribeServiceError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Transcription{Error: "unsupported codec"})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Transcribe(context.Background(), "note.ogg", strings.NewReader("x"), "")
	if err == nil || !strings.Contains(err.Error(), "unsupported codec") {
		t.Fatalf("err %v", err)
	}
}

func TestSpeak(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/speak" {
			t.Errorf("path %s", r.URL.Path)
		}
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		if req["text"] != "all done" {
			t.Errorf("text %q", req["text"])
		}
		w.Write([]byte{0x52, 0x49, 0x46, 0x46})
	}))
	defer srv.Close()

	audio, err := NewClient(srv.URL, time.Second).Speak(context.Background(), "all done")
	if err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if len(audio) != 4 {
		t.Fatalf("audio %v", audio)
	}
}
