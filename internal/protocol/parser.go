package protocol

import (
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/rs/zerolog/log"
)

// StreamParser splits an accumulating text/event-stream buffer into complete
// envelopes. Records are separated by blank lines; within a record,
// "event:" sets the pending event name and a "data:" line is JSON-decoded
// and emitted once a pending name exists. A trailing partial record is kept
// for the next Feed call, so no envelope is dropped or parsed twice when it
// spans two network reads.
type StreamParser struct {
	buf string
	// a read may end between the bytes of a CRLF; the bare CR is held back
	// so normalization sees the full pair on the next chunk
	pendingCR bool
}

// NewStreamParser creates an empty parser
func NewStreamParser() *StreamParser {
	return &StreamParser{}
}

// Feed appends a chunk to the buffer and returns every envelope that is now
// fully present, in stream order. CRLF line endings are normalized on
// ingest so "\r\n\r\n" separates records the same way "\n\n" does.
func (p *StreamParser) Feed(chunk string) []Envelope {
	if p.pendingCR {
		chunk = "\r" + chunk
		p.pendingCR = false
	}
	if strings.HasSuffix(chunk, "\r") {
		chunk = chunk[:len(chunk)-1]
		p.pendingCR = true
	}
	p.buf += strings.ReplaceAll(chunk, "\r\n", "\n")

	records := strings.Split(p.buf, "\n\n")
	// The last element is either empty (buffer ended on a separator) or a
	// partial record still waiting for its blank line.
	p.buf = records[len(records)-1]
	records = records[:len(records)-1]

	var envelopes []Envelope
	for _, record := range records {
		envelopes = append(envelopes, parseRecord(record)...)
	}
	return envelopes
}

// Flush parses whatever remains in the buffer as a final record. Call it
// once the stream has ended; some servers omit the trailing blank line.
func (p *StreamParser) Flush() []Envelope {
	if p.pendingCR {
		p.buf += "\r"
		p.pendingCR = false
	}
	if p.buf == "" {
		return nil
	}
	record := p.buf
	p.buf = ""
	return parseRecord(record)
}

// Pending returns the size of the buffered partial record
func (p *StreamParser) Pending() int {
	return len(p.buf)
}

func parseRecord(record string) []Envelope {
	var envelopes []Envelope
	var pending string

	for _, line := range strings.Split(record, "\n") {
		line = strings.TrimSuffix(line, "\r")
		switch {
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive line
		case strings.HasPrefix(line, "event:"):
			pending = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if pending == "" {
				// orphan data line, no event name to attach it to
				continue
			}
			raw := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			payload, ok := decodePayload(pending, raw)
			if !ok {
				continue
			}
			envelopes = append(envelopes, Envelope{Event: EventType(pending), Data: payload})
			pending = ""
		}
	}
	return envelopes
}

// decodePayload validates the data line as JSON. A malformed line is always
// skipped so the rest of the stream survives; a guessed payload is never
// emitted as a live envelope. The repair pass is diagnostic only: the warn
// line shows what the server likely meant.
func decodePayload(event, raw string) (json.RawMessage, bool) {
	if raw == "" {
		raw = "{}"
	}
	if json.Valid([]byte(raw)) {
		return json.RawMessage(raw), true
	}

	warn := log.Warn().Str("event", event).Str("payload", truncate(raw, 120))
	if repaired, err := jsonrepair.JSONRepair(raw); err == nil {
		warn = warn.Str("repaired", truncate(repaired, 120))
	}
	warn.Msg("skipping malformed event payload")
	return nil, false
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
