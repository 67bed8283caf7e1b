// Package sse frames server-sent-event records out of a streaming response body.
package sse

import (
	"bytes"
	"context"
	"errors"
	"io"
	"unicode/utf8"
)

// recordDelimiter is the blank line that separates SSE records.
var recordDelimiter = []byte("\n\n")

// dataPrefix marks payload lines within a record.
var dataPrefix = []byte("data:")

// Splitter is an incremental tokenizer: feed it byte chunks in arrival
// order and it yields complete record payloads, independent of how the
// bytes were split across chunks. The remainder after the last delimiter is
// retained for the next chunk.
type Splitter struct {
	buf bytes.Buffer
}

// Write appends a chunk and returns the payloads of every record completed
// by it, in order. Records with no data lines or invalid UTF-8 are dropped.
func (s *Splitter) Write(chunk []byte) []string {
	s.buf.Write(chunk)

	var payloads []string
	for {
		raw := s.buf.Bytes()
		idx := bytes.Index(raw, recordDelimiter)
		if idx < 0 {
			return payloads
		}
		record := make([]byte, idx)
		copy(record, raw[:idx])
		s.buf.Next(idx + len(recordDelimiter))

		if payload, ok := extractPayload(record); ok {
			payloads = append(payloads, payload)
		}
	}
}

// extractPayload concatenates the data lines of one record. Lines without
// the data prefix (event names, comments, ids) are ignored. At most one
// space after the colon is stripped, tolerating both "data:" and "data: "
// producers.
func extractPayload(record []byte) (string, bool) {
	if !utf8.Valid(record) {
		return "", false
	}

	var payload bytes.Buffer
	seen := false
	for _, line := range bytes.Split(record, []byte("\n")) {
		line = bytes.TrimSuffix(line, []byte("\r"))
		if !bytes.HasPrefix(line, dataPrefix) {
			continue
		}
		data := line[len(dataPrefix):]
		if len(data) > 0 && data[0] == ' ' {
			data = data[1:]
		}
		payload.Write(data)
		seen = true
	}
	if !seen {
		return "", false
	}
	return payload.String(), true
}

// Read consumes body until EOF, error, or context cancellation, invoking
// onRecord once per complete record payload. A clean EOF and a cooperative
// cancellation both return nil; any other failure is returned as-is.
func Read(ctx context.Context, body io.Reader, onRecord func(string)) error {
	var splitter Splitter
	buf := make([]byte, 4096)

	for {
		n, err := body.Read(buf)
		if n > 0 {
			for _, payload := range splitter.Write(buf[:n]) {
				onRecord(payload)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}
