// Package records reads and writes the line-delimited JSON records consumed
// and produced by the batch tools.
package records

import (
	"bufio"
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// #region types
var (
	ErrMalformed    = errors.New("malformed record")
	ErrMissingField = errors.New("record field missing")
)

// PromptRecord is one embedding input line.
type PromptRecord struct {
	Prompt string `json:"prompt"`
}

// ResponseRecord is one output line.
type ResponseRecord struct {
	Prompt   string `json:"prompt"`
	Response string `json:"response"`
}

// Line is one non-blank input line and its 1-based number. Err is set when
// the line could not be read as a record at all.
type Line struct {
	Number int
	Raw    []byte
	Err    error
}

// LineError ties a per-line failure to its line number.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// #endregion types

// #region schemas
//go:embed schema/*.schema.json
var schemaFS embed.FS

var (
	schemaOnce     sync.Once
	promptSchema   *jsonschema.Schema
	responseSchema *jsonschema.Schema
	schemaErr      error
)

func loadSchemas() error {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		for _, name := range []string{"prompt.schema.json", "response.schema.json"} {
			data, err := schemaFS.ReadFile("schema/" + name)
			if err != nil {
				schemaErr = fmt.Errorf("read schema %s: %w", name, err)
				return
			}
			if err := compiler.AddResource(name, bytes.NewReader(data)); err != nil {
				schemaErr = fmt.Errorf("add schema %s: %w", name, err)
				return
			}
		}
		if promptSchema, schemaErr = compiler.Compile("prompt.schema.json"); schemaErr != nil {
			return
		}
		responseSchema, schemaErr = compiler.Compile("response.schema.json")
	})
	return schemaErr
}

// #endregion schemas

// #region reader
// maxLineBytes bounds a single record. A longer line is discarded up to its
// newline and reported as a malformed line, so the stream keeps going.
const maxLineBytes = 16 << 20

// Reader yields non-blank lines from a JSONL stream.
type Reader struct {
	br   *bufio.Reader
	line int
	done bool
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next non-blank line, or io.EOF when the stream ends. An
// oversized line is returned with Err set instead of Raw.
func (r *Reader) Next() (Line, error) {
	for !r.done {
		raw, oversized, err := r.readLine()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return Line{}, fmt.Errorf("read line %d: %w", r.line+1, err)
			}
			r.done = true
			if len(raw) == 0 && !oversized {
				break
			}
		}
		r.line++
		if oversized {
			return Line{Number: r.line, Err: &LineError{
				Line: r.line,
				Err:  fmt.Errorf("%w: line exceeds %d bytes", ErrMalformed, maxLineBytes),
			}}, nil
		}
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 {
			continue
		}
		return Line{Number: r.line, Raw: raw}, nil
	}
	return Line{}, io.EOF
}

// readLine returns one line including its newline. Past maxLineBytes the rest
// of the line is consumed and dropped.
func (r *Reader) readLine() ([]byte, bool, error) {
	var buf []byte
	oversized := false
	for {
		chunk, err := r.br.ReadSlice('\n')
		if !oversized {
			if len(buf)+len(chunk) > maxLineBytes+1 {
				oversized = true
				buf = nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return buf, oversized, err
	}
}

// ReadAll drains the stream.
func (r *Reader) ReadAll() ([]Line, error) {
	var lines []Line
	for {
		l, err := r.Next()
		if errors.Is(err, io.EOF) {
			return lines, nil
		}
		if err != nil {
			return lines, err
		}
		lines = append(lines, l)
	}
}

// #endregion reader

// #region decode
// DecodePrompt parses and validates an input line.
func DecodePrompt(l Line) (PromptRecord, error) {
	if err := validate(l, func() *jsonschema.Schema { return promptSchema }); err != nil {
		return PromptRecord{}, err
	}
	var rec PromptRecord
	if err := json.Unmarshal(l.Raw, &rec); err != nil {
		return PromptRecord{}, &LineError{Line: l.Number, Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}
	return rec, nil
}

// DecodeResponse parses and validates an output line.
func DecodeResponse(l Line) (ResponseRecord, error) {
	if err := validate(l, func() *jsonschema.Schema { return responseSchema }); err != nil {
		return ResponseRecord{}, err
	}
	var rec ResponseRecord
	if err := json.Unmarshal(l.Raw, &rec); err != nil {
		return ResponseRecord{}, &LineError{Line: l.Number, Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}
	return rec, nil
}

// Field extracts one string field from an arbitrary JSON object line.
func Field(l Line, name string) (string, error) {
	if l.Err != nil {
		return "", l.Err
	}
	var obj map[string]any
	if err := json.Unmarshal(l.Raw, &obj); err != nil {
		return "", &LineError{Line: l.Number, Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}
	v, ok := obj[name]
	if !ok {
		return "", &LineError{Line: l.Number, Err: fmt.Errorf("%w: %q", ErrMissingField, name)}
	}
	s, ok := v.(string)
	if !ok {
		return "", &LineError{Line: l.Number, Err: fmt.Errorf("%w: field %q is %T, want string", ErrMalformed, name, v)}
	}
	return s, nil
}

func validate(l Line, schema func() *jsonschema.Schema) error {
	if l.Err != nil {
		return l.Err
	}
	if err := loadSchemas(); err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(l.Raw, &doc); err != nil {
		return &LineError{Line: l.Number, Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}
	if err := schema().Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) && isMissingRequired(ve) {
			return &LineError{Line: l.Number, Err: fmt.Errorf("%w: %v", ErrMissingField, err)}
		}
		return &LineError{Line: l.Number, Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}
	return nil
}

// isMissingRequired reports whether any leaf of the validation error tree is
// a "required" keyword failure.
func isMissingRequired(ve *jsonschema.ValidationError) bool {
	if len(ve.Causes) == 0 {
		return bytes.HasSuffix([]byte(ve.KeywordLocation), []byte("/required"))
	}
	for _, c := range ve.Causes {
		if isMissingRequired(c) {
			return true
		}
	}
	return false
}

// #endregion decode

// #region writer
// Writer emits one JSON object per line. Non-ASCII text and zero-width
// characters are written as-is.
type Writer struct {
	enc *json.Encoder
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &Writer{enc: enc}
}

// Write encodes v followed by a newline.
func (w *Writer) Write(v any) error {
	if err := w.enc.Encode(v); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

// #endregion writer
