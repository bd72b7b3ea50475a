// Package codec reads and writes collapsed decision rows as fixed-width
// binary records.
//
// A record is the selected slot as a msgpack int64 followed by
// MaxChoices*len(Features) msgpack float32 values, slot-major. Both codes are
// fixed size (9 and 5 bytes), so every record of a file has the same width.
// Records carry no schema; the file header does.
package codec

import (
	"bytes"
	"fmt"
	"slices"

	"mimic/domain"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

const (
	int64Width   = 9
	float32Width = 5
)

// Schema is the file-level layout every record of a file shares.
type Schema struct {
	MaxChoices int      `msgpack:"max_choices" json:"max_choices"`
	Features   []string `msgpack:"features" json:"features"`
}

func SchemaOf(cfg domain.CollapseConfig) Schema {
	return Schema{MaxChoices: cfg.MaxChoices, Features: append([]string(nil), cfg.Features...)}
}

func (s Schema) Validate() error {
	if s.MaxChoices <= 0 {
		return fmt.Errorf("max_choices must be positive, got %d", s.MaxChoices)
	}
	if len(s.Features) == 0 {
		return fmt.Errorf("schema has no features")
	}
	return nil
}

// Fields is the number of fields per record: the selected slot plus one value
// per (slot, feature).
func (s Schema) Fields() int {
	return 1 + s.MaxChoices*len(s.Features)
}

// RecordSize is the encoded width of one record in bytes.
func (s Schema) RecordSize() int {
	return int64Width + float32Width*s.MaxChoices*len(s.Features)
}

func (s Schema) Equal(o Schema) bool {
	return s.MaxChoices == o.MaxChoices && slices.Equal(s.Features, o.Features)
}

// Encode serializes one collapsed row.
func Encode(s Schema, row domain.CollapsedRow) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, s.RecordSize()))
	if err := encodeTo(msgpack.NewEncoder(buf), s, row); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeTo(enc *msgpack.Encoder, s Schema, row domain.CollapsedRow) error {
	if len(row.Slots) != s.MaxChoices {
		return fmt.Errorf("%s: row has %d slots, schema has %d", row.Key, len(row.Slots), s.MaxChoices)
	}
	if row.SelectedSlot < 0 || row.SelectedSlot >= s.MaxChoices {
		return fmt.Errorf("%s: selected slot %d out of range", row.Key, row.SelectedSlot)
	}

	if err := enc.EncodeInt64(int64(row.SelectedSlot)); err != nil {
		return fmt.Errorf("encode selected slot: %w", err)
	}
	for slot, values := range row.Slots {
		if len(values) != len(s.Features) {
			return fmt.Errorf("%s: slot %d has %d features, schema has %d", row.Key, slot, len(values), len(s.Features))
		}
		for _, v := range values {
			if err := enc.EncodeFloat32(v); err != nil {
				return fmt.Errorf("encode slot %d: %w", slot, err)
			}
		}
	}
	return nil
}

// Decode parses one record. The decoded row has no identity and Size 0:
// neither is part of the record.
func Decode(s Schema, b []byte) (domain.CollapsedRow, error) {
	return decodeRecord(s, b, 0)
}

func decodeRecord(s Schema, b []byte, index int) (domain.CollapsedRow, error) {
	if len(b) != s.RecordSize() {
		return domain.CollapsedRow{}, &domain.CodecError{
			Record: index,
			Reason: fmt.Sprintf("record is %d bytes, schema (%d fields) needs %d", len(b), s.Fields(), s.RecordSize()),
		}
	}
	if b[0] != msgpcode.Int64 {
		return domain.CollapsedRow{}, &domain.CodecError{Record: index, Reason: fmt.Sprintf("selected slot has code 0x%x", b[0])}
	}

	dec := msgpack.NewDecoder(bytes.NewReader(b))
	selected, err := dec.DecodeInt64()
	if err != nil {
		return domain.CollapsedRow{}, &domain.CodecError{Record: index, Reason: err.Error()}
	}
	if selected < 0 || selected >= int64(s.MaxChoices) {
		return domain.CollapsedRow{}, &domain.CodecError{
			Record: index,
			Reason: fmt.Sprintf("selected slot %d outside [0, %d)", selected, s.MaxChoices),
		}
	}

	nf := len(s.Features)
	values := make([]float32, s.MaxChoices*nf)
	for i := range values {
		if code := b[int64Width+i*float32Width]; code != msgpcode.Float {
			return domain.CollapsedRow{}, &domain.CodecError{Record: index, Reason: fmt.Sprintf("field %d has code 0x%x", i+1, code)}
		}
		v, err := dec.DecodeFloat32()
		if err != nil {
			return domain.CollapsedRow{}, &domain.CodecError{Record: index, Reason: err.Error()}
		}
		values[i] = v
	}

	slots := make([][]float32, s.MaxChoices)
	for slot := range slots {
		slots[slot] = values[slot*nf : (slot+1)*nf : (slot+1)*nf]
	}

	return domain.CollapsedRow{
		SelectedSlot: int(selected),
		Slots:        slots,
	}, nil
}
