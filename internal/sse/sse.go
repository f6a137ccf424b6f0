// Package sse decodes the event-stream response bodies returned by the
// chat and workflow APIs. Upstreams differ in how they frame records, so the
// [Decoder] supports both line framing ("data: ...\n") and block framing
// (records separated by a blank line).
//
// The decoder buffers raw bytes and only converts complete records to
// strings, so a multi-byte character split across two network reads is
// reassembled before it is decoded.
package sse

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
)

// Done is the sentinel payload that terminates OpenAI-style streams.
const Done = "[DONE]"

// Framing selects how the byte stream is split into records.
type Framing int

const (
	// Lines treats every newline-terminated line as a record.
	Lines Framing = iota
	// Blocks treats every blank-line-terminated block as a record.
	Blocks
)

// Decoder is a push-style splitter. Feed appends bytes and returns every
// record they complete; an unterminated tail stays buffered until more bytes
// arrive or Flush is called.
type Decoder struct {
	framing Framing
	buf     []byte
}

// NewDecoder returns a Decoder for the given framing.
func NewDecoder(f Framing) *Decoder {
	return &Decoder{framing: f}
}

func (d *Decoder) separator() []byte {
	if d.framing == Blocks {
		return []byte("\n\n")
	}
	return []byte("\n")
}

// Feed appends p and returns the records it completed. Blank records are
// dropped.
func (d *Decoder) Feed(p []byte) []string {
	d.buf = append(d.buf, p...)
	if d.framing == Blocks {
		d.buf = bytes.ReplaceAll(d.buf, []byte("\r\n"), []byte("\n"))
	}
	sep := d.separator()

	var out []string
	for {
		i := bytes.Index(d.buf, sep)
		if i < 0 {
			break
		}
		rec := strings.TrimRight(string(d.buf[:i]), "\r")
		d.buf = d.buf[i+len(sep):]
		if strings.TrimSpace(rec) != "" {
			out = append(out, rec)
		}
	}
	return out
}

// Flush returns the buffered tail as a final record, if it is non-blank, and
// resets the decoder.
func (d *Decoder) Flush() (string, bool) {
	rec := strings.TrimRight(string(d.buf), "\r\n")
	d.buf = nil
	if strings.TrimSpace(rec) == "" {
		return "", false
	}
	return rec, true
}

// Buffered reports how many bytes are waiting for a terminator.
func (d *Decoder) Buffered() int { return len(d.buf) }

// Data extracts the payload carried by a record's "data:" field lines.
// Multiple data lines are joined with a newline. A single optional space
// after the colon is removed. ok is false when the record has no data field.
func Data(record string) (payload string, ok bool) {
	var parts []string
	for _, line := range strings.Split(record, "\n") {
		line = strings.TrimRight(line, "\r")
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		v := strings.TrimPrefix(line, "data:")
		v = strings.TrimPrefix(v, " ")
		parts = append(parts, v)
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, "\n"), true
}

// Read consumes body until EOF and calls fn with the data payload of every
// record, including one left unterminated at EOF. Records without a data
// field are skipped. Read closes body when it returns, and cancelling ctx
// closes body early so a blocked read returns promptly. An error returned by
// fn stops the read and is returned as-is.
func Read(ctx context.Context, body io.ReadCloser, framing Framing, fn func(payload string) error) error {
	defer body.Close()
	stop := context.AfterFunc(ctx, func() { _ = body.Close() })
	defer stop()

	dec := NewDecoder(framing)
	emit := func(records []string) error {
		for _, rec := range records {
			payload, ok := Data(rec)
			if !ok {
				continue
			}
			if err := fn(payload); err != nil {
				return err
			}
		}
		return nil
	}

	buf := make([]byte, 4096)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if ferr := emit(dec.Feed(buf[:n])); ferr != nil {
				return ferr
			}
		}
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !errors.Is(err, io.EOF) {
			return err
		}
		if tail, ok := dec.Flush(); ok {
			return emit([]string{tail})
		}
		return nil
	}
}
