package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SplitBatch splits one inbound frame into its newline-delimited payloads,
// dropping blank lines.
func SplitBatch(frame []byte) [][]byte {
	var lines [][]byte
	for _, line := range bytes.Split(frame, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// LineError reports one payload of a batch that could not be decoded.
type LineError struct {
	Index int
	Err   error
}

func (e LineError) Error() string {
	return fmt.Sprintf("batch line %d: %v", e.Index, e.Err)
}

func (e LineError) Unwrap() error { return e.Err }

// DecodeBatch decodes every payload of a frame independently. A bad line is
// reported in errs and never stops its siblings from decoding.
func DecodeBatch(frame []byte) (events []Event, errs []LineError) {
	for i, line := range SplitBatch(frame) {
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			errs = append(errs, LineError{Index: i, Err: err})
			continue
		}
		if ev.Type == "" {
			errs = append(errs, LineError{Index: i, Err: ErrMissingType})
			continue
		}
		events = append(events, ev)
	}
	return events, errs
}
