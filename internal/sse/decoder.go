// Package sse decodes an OpenAI-compatible chat completion event stream into
// text fragments.
package sse

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// MaxLineSize bounds a single event line. Longer lines fail the stream.
const MaxLineSize = 1 << 20

var (
	dataPrefix  = []byte("data: ")
	donePayload = []byte("[DONE]")
)

// ErrLineTooLong is returned when a line exceeds MaxLineSize.
var ErrLineTooLong = errors.New("sse: line exceeds maximum size")

type chunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Decoder yields the non-empty choices[0].delta.content values of a stream in
// arrival order. It is not safe for concurrent use.
type Decoder struct {
	r      *bufio.Reader
	logger *zap.SugaredLogger
	line   []byte
	done   bool
	eof    bool
}

func NewDecoder(r io.Reader, logger *zap.SugaredLogger) *Decoder {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Decoder{r: bufio.NewReaderSize(r, 64*1024), logger: logger}
}

// Next returns the next text fragment. It returns io.EOF once the transport
// ends cleanly; everything after a [DONE] event is read but ignored.
func (d *Decoder) Next() (string, error) {
	for !d.eof {
		line, err := d.readLine()
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		if errors.Is(err, io.EOF) {
			d.eof = true
		}
		if text, ok := d.decodeLine(line); ok {
			return text, nil
		}
	}
	return "", io.EOF
}

// Each calls fn for every fragment until the stream ends. An error from fn
// stops decoding and is returned as is.
func (d *Decoder) Each(fn func(string) error) error {
	for {
		text, err := d.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(text); err != nil {
			return err
		}
	}
}

// Collect concatenates every fragment of r.
func Collect(r io.Reader, logger *zap.SugaredLogger) (string, error) {
	var buf bytes.Buffer
	err := NewDecoder(r, logger).Each(func(s string) error {
		buf.WriteString(s)
		return nil
	})
	return buf.String(), err
}

// readLine returns one line without its terminator. At end of stream it
// returns the unterminated remainder together with io.EOF.
func (d *Decoder) readLine() ([]byte, error) {
	d.line = d.line[:0]
	for {
		frag, err := d.r.ReadSlice('\n')
		if len(d.line)+len(frag) > MaxLineSize+2 {
			return nil, ErrLineTooLong
		}
		d.line = append(d.line, frag...)
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		line := bytes.TrimSuffix(d.line, []byte("\n"))
		line = bytes.TrimSuffix(line, []byte("\r"))
		if len(line) > MaxLineSize {
			return nil, ErrLineTooLong
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return line, io.EOF
			}
			return nil, fmt.Errorf("sse: read: %w", err)
		}
		return line, nil
	}
}

func (d *Decoder) decodeLine(line []byte) (string, bool) {
	if d.done || !bytes.HasPrefix(line, dataPrefix) {
		return "", false
	}
	payload := line[len(dataPrefix):]
	if bytes.Equal(bytes.TrimSpace(payload), donePayload) {
		d.done = true
		return "", false
	}

	var c chunk
	if err := json.Unmarshal(payload, &c); err != nil {
		d.logger.Warnw("Skipping malformed stream event", "error", err, "bytes", len(payload))
		return "", false
	}
	if len(c.Choices) == 0 || c.Choices[0].Delta.Content == "" {
		return "", false
	}
	return c.Choices[0].Delta.Content, true
}
