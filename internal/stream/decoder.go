// Package stream decodes a text/event-stream response into discrete frames.
//
// Chunks arrive with arbitrary boundaries; the decoder buffers the trailing
// incomplete block across calls so a frame split over two reads is still
// decoded exactly once.
package stream

import (
	"strings"
)

// Frame is one decoded unit of the event stream. Data holds the raw payload
// text (the newline-joined data lines); typed decoding lives in events.go.
type Frame struct {
	Event string
	Data  string
}

// Decoder accumulates stream text and yields complete frames. The zero value
// is ready to use.
type Decoder struct {
	rest string
}

// Feed appends chunk to the internal buffer and returns every frame completed
// so far, in order. Malformed input never fails: at worst a block decodes to
// fewer frames and the remainder stays buffered for the next chunk.
func (d *Decoder) Feed(chunk string) []Frame {
	if d == nil {
		return nil
	}
	buf := d.rest + normalizeNewlines(chunk)
	blocks := strings.Split(buf, "\n\n")
	d.rest = blocks[len(blocks)-1]

	var out []Frame
	for _, block := range blocks[:len(blocks)-1] {
		if frame, ok := parseBlock(block); ok {
			out = append(out, frame)
		}
	}
	return out
}

// Flush decodes whatever is left in the buffer as a final block. Call it once
// after the stream ends; servers are expected to terminate every frame with a
// blank line, but a truncated tail frame is still recovered here.
func (d *Decoder) Flush() []Frame {
	if d == nil || d.rest == "" {
		return nil
	}
	block := d.rest
	d.rest = ""
	if frame, ok := parseBlock(block); ok {
		return []Frame{frame}
	}
	return nil
}

// Rest returns the undecoded remainder, for diagnostics.
func (d *Decoder) Rest() string {
	if d == nil {
		return ""
	}
	return d.rest
}

func normalizeNewlines(s string) string {
	if !strings.ContainsAny(s, "\r") {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// parseBlock scans one blank-line-terminated block. A block with data lines
// but no event line yields a frame with an empty name; callers treat that as
// an unclassified frame. A block with no data lines at all is dropped.
func parseBlock(block string) (Frame, bool) {
	var (
		event     string
		dataLines []string
	)
	for _, line := range strings.Split(block, "\n") {
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, ":"):
			// Comment / keep-alive line.
			continue
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			part := strings.TrimPrefix(line, "data:")
			part = strings.TrimPrefix(part, " ")
			dataLines = append(dataLines, part)
		}
	}
	if event == "" && len(dataLines) == 0 {
		return Frame{}, false
	}
	return Frame{Event: event, Data: strings.Join(dataLines, "\n")}, true
}
