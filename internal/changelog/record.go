package changelog

import (
	"encoding/binary"
	"fmt"

	"github.com/kobzarvs/qex/internal/mark"
)

// Kind is the one-byte tag at the front of every encoded record.
type Kind uint8

const (
	KindStart       Kind = iota + 1 // transaction start, cursor before the change
	KindEnd                         // transaction end, cursor after the change
	KindAppend                      // line appended; text is the new line
	KindDelete                      // line deleted; text is the old line
	KindInsert                      // line inserted; text is the new line
	KindResetBefore                 // line replaced; text is the old line
	KindResetAfter                  // line replaced; text is the new line
	KindMark                        // mark position before it was deleted
)

var kindNames = map[Kind]string{
	KindStart:       "start",
	KindEnd:         "end",
	KindAppend:      "append",
	KindDelete:      "delete",
	KindInsert:      "insert",
	KindResetBefore: "reset-before",
	KindResetAfter:  "reset-after",
	KindMark:        "mark",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Record is one log entry: a CursorRecord, LineRecord or MarkRecord.
type Record interface {
	Kind() Kind
	appendTo(b []byte) []byte
}

// CursorRecord brackets a transaction.
type CursorRecord struct {
	End bool
	Pos mark.Position
}

func (r CursorRecord) Kind() Kind {
	if r.End {
		return KindEnd
	}
	return KindStart
}

func (r CursorRecord) appendTo(b []byte) []byte {
	b = binary.AppendUvarint(b, uint64(r.Pos.Line))
	return binary.AppendUvarint(b, uint64(r.Pos.Column))
}

// LineRecord is a physical image of one line.
type LineRecord struct {
	Op   Kind
	Line int
	Text []byte
}

func (r LineRecord) Kind() Kind { return r.Op }

func (r LineRecord) appendTo(b []byte) []byte {
	b = binary.AppendUvarint(b, uint64(r.Line))
	b = binary.AppendUvarint(b, uint64(len(r.Text)))
	return append(b, r.Text...)
}

// MarkRecord holds a mark as it was when its line was deleted.
type MarkRecord struct {
	Name byte
	Pos  mark.Position
}

func (r MarkRecord) Kind() Kind { return KindMark }

func (r MarkRecord) appendTo(b []byte) []byte {
	b = append(b, r.Name)
	b = binary.AppendUvarint(b, uint64(r.Pos.Line))
	return binary.AppendUvarint(b, uint64(r.Pos.Column))
}

// Encode returns the stored form of rec.
func Encode(rec Record) []byte {
	b := make([]byte, 0, 16)
	b = append(b, byte(rec.Kind()))
	return rec.appendTo(b)
}

// Decode parses a record produced by Encode.
func Decode(b []byte) (Record, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty record", ErrCorrupt)
	}
	d := decoder{buf: b[1:]}
	var rec Record
	switch k := Kind(b[0]); k {
	case KindStart, KindEnd:
		pos := d.position()
		rec = CursorRecord{End: k == KindEnd, Pos: pos}
	case KindAppend, KindDelete, KindInsert, KindResetBefore, KindResetAfter:
		lno := d.uvarint()
		text := d.bytes(d.uvarint())
		rec = LineRecord{Op: k, Line: lno, Text: text}
	case KindMark:
		name := d.readByte()
		pos := d.position()
		rec = MarkRecord{Name: name, Pos: pos}
	default:
		return nil, fmt.Errorf("%w: unknown kind %d", ErrCorrupt, b[0])
	}
	if d.err != nil {
		return nil, fmt.Errorf("%w: %s record: %v", ErrCorrupt, Kind(b[0]), d.err)
	}
	if len(d.buf) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, len(d.buf))
	}
	return rec, nil
}

type decoder struct {
	buf []byte
	err error
}

func (d *decoder) uvarint() int {
	if d.err != nil {
		return 0
	}
	v, n := binary.Uvarint(d.buf)
	if n <= 0 {
		d.err = fmt.Errorf("bad varint")
		return 0
	}
	d.buf = d.buf[n:]
	return int(v)
}

func (d *decoder) readByte() byte {
	if d.err != nil {
		return 0
	}
	if len(d.buf) == 0 {
		d.err = fmt.Errorf("short record")
		return 0
	}
	c := d.buf[0]
	d.buf = d.buf[1:]
	return c
}

func (d *decoder) bytes(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || n > len(d.buf) {
		d.err = fmt.Errorf("short record")
		return nil
	}
	out := make([]byte, n)
	copy(out, d.buf[:n])
	d.buf = d.buf[n:]
	return out
}

func (d *decoder) position() mark.Position {
	line := d.uvarint()
	col := d.uvarint()
	return mark.Position{Line: line, Column: col}
}
