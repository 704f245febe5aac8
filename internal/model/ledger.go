package model

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// maxLedgerLine bounds a single JSONL line. Events carry only short path hints,
// so anything near this size is malformed input.
const maxLedgerLine = 8 << 20

// LineError reports a malformed line in line-delimited input.
type LineError struct {
	Line int // 1-based
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// EncodeLedger writes events as JSONL, one envelope per line.
// HTML escaping is disabled so titles round-trip byte-for-byte.
func EncodeLedger(w io.Writer, events []EventEnvelope) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i, ev := range events {
		if err := enc.Encode(ev); err != nil {
			return fmt.Errorf("encode event %d (%s): %w", i, ev.ID, err)
		}
	}
	return nil
}

// DecodeLedger reads JSONL events. Blank lines are skipped.
// Any malformed, invalid or duplicate event fails the whole read with a *LineError.
func DecodeLedger(r io.Reader) ([]EventEnvelope, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLedgerLine)

	var events []EventEnvelope
	seen := make(map[string]int)
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var ev EventEnvelope
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, &LineError{Line: line, Err: err}
		}
		if err := ev.Validate(); err != nil {
			return nil, &LineError{Line: line, Err: err}
		}
		if prev, dup := seen[ev.ID]; dup {
			return nil, &LineError{Line: line, Err: fmt.Errorf("duplicate event id %s (first seen on line %d)", ev.ID, prev)}
		}
		seen[ev.ID] = line
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, &LineError{Line: line + 1, Err: err}
	}
	return events, nil
}
