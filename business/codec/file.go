package codec

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"mimic/domain"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	magic         = "MCRC"
	formatVersion = 1
)

type header struct {
	Version int `msgpack:"version"`
	Schema
}

// Writer writes a record file: magic, msgpack header, fixed-width records.
type Writer struct {
	bw     *bufio.Writer
	enc    *msgpack.Encoder
	schema Schema
	count  int
}

func NewWriter(w io.Writer, s Schema) (*Writer, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(magic); err != nil {
		return nil, fmt.Errorf("write magic: %w", err)
	}
	enc := msgpack.NewEncoder(bw)
	if err := enc.Encode(header{Version: formatVersion, Schema: s}); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	return &Writer{bw: bw, enc: enc, schema: s}, nil
}

func (w *Writer) Write(row domain.CollapsedRow) error {
	if err := encodeTo(w.enc, w.schema, row); err != nil {
		return fmt.Errorf("record %d: %w", w.count, err)
	}
	w.count++
	return nil
}

// Count is the number of records written so far.
func (w *Writer) Count() int {
	return w.count
}

// Close flushes buffered records. It does not close the underlying writer.
func (w *Writer) Close() error {
	return w.bw.Flush()
}

// Reader reads a record file written by Writer.
type Reader struct {
	br     *bufio.Reader
	schema Schema
	buf    []byte
	index  int
}

// NewReader reads the file header and checks it against the declared schema.
// A file built with a different layout is rejected before any record is read.
func NewReader(r io.Reader, declared Schema) (*Reader, error) {
	if err := declared.Validate(); err != nil {
		return nil, err
	}

	br := bufio.NewReader(r)
	m := make([]byte, len(magic))
	if _, err := io.ReadFull(br, m); err != nil {
		return nil, &domain.CodecError{Record: -1, Reason: fmt.Sprintf("read magic: %v", err)}
	}
	if string(m) != magic {
		return nil, &domain.CodecError{Record: -1, Reason: fmt.Sprintf("bad magic %q", m)}
	}

	var h header
	if err := msgpack.NewDecoder(br).Decode(&h); err != nil {
		return nil, &domain.CodecError{Record: -1, Reason: fmt.Sprintf("decode header: %v", err)}
	}
	if h.Version != formatVersion {
		return nil, &domain.CodecError{Record: -1, Reason: fmt.Sprintf("unsupported version %d", h.Version)}
	}
	if !h.Schema.Equal(declared) {
		return nil, &domain.CodecError{
			Record: -1,
			Reason: fmt.Sprintf("file layout max_choices=%d features=%v, declared max_choices=%d features=%v",
				h.MaxChoices, h.Features, declared.MaxChoices, declared.Features),
		}
	}

	return &Reader{br: br, schema: declared, buf: make([]byte, declared.RecordSize())}, nil
}

// Read returns the next record, or io.EOF after the last one.
func (r *Reader) Read() (domain.CollapsedRow, error) {
	n, err := io.ReadFull(r.br, r.buf)
	switch {
	case errors.Is(err, io.EOF):
		return domain.CollapsedRow{}, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		return domain.CollapsedRow{}, &domain.CodecError{
			Record: r.index,
			Reason: fmt.Sprintf("truncated record: %d of %d bytes", n, len(r.buf)),
		}
	case err != nil:
		return domain.CollapsedRow{}, fmt.Errorf("read record %d: %w", r.index, err)
	}

	row, err := decodeRecord(r.schema, r.buf, r.index)
	if err != nil {
		return domain.CollapsedRow{}, err
	}
	r.index++
	return row, nil
}

// ReadAll reads every remaining record.
func (r *Reader) ReadAll() ([]domain.CollapsedRow, error) {
	var out []domain.CollapsedRow
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, row)
	}
}
