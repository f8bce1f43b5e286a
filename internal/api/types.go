package api

// ChatRequest starts or resumes a turn. Exactly one of Message and
// ResumeAction is non-null per request; ThreadID is stable for the whole
// conversation.
type ChatRequest struct {
	Message      *string `json:"message"`
	ResumeAction *string `json:"resume_action"`
	ThreadID     string  `json:"thread_id"`
}

// HistoryMessage is one persisted conversation entry.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Transcription is the voice service's answer for an audio payload.
type Transcription struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
	Error    string `json:"error,omitempty"`
}
