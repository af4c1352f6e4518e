package quassel

import (
	"encoding/binary"
	"fmt"
	"maps"
	"math"
	"slices"
	"time"
	"unicode/utf16"
)

// VariantList is a QVariantList.
type VariantList []any

// VariantMap is a QVariantMap.
type VariantMap map[string]any

// Keys returns the map keys in sorted order.
func (m VariantMap) Keys() []string {
	return slices.Sorted(maps.Keys(m))
}

// QTime is a time of day as carried by a QTime value.
type QTime time.Duration

// Qt meta type ids as they appear in a serialized QVariant.
const (
	typeInvalid    uint32 = 0
	typeBool       uint32 = 1
	typeInt        uint32 = 2
	typeUInt       uint32 = 3
	typeLongLong   uint32 = 4
	typeULongLong  uint32 = 5
	typeMap        uint32 = 8
	typeList       uint32 = 9
	typeString     uint32 = 10
	typeStringList uint32 = 11
	typeByteArray  uint32 = 12
	typeTime       uint32 = 15
	typeDateTime   uint32 = 16
	typeLong       uint32 = 32
	typeShort      uint32 = 33
	typeChar       uint32 = 34
	typeUShort     uint32 = 36
	typeUChar      uint32 = 37
	typeUser       uint32 = 127
)

const (
	nullLength uint32 = 0xffffffff

	// julianEpoch is the Julian day number of 1970-01-01.
	julianEpoch = 2440588

	timeSpecUTC uint8 = 1
)

// Decoder reads QDataStream (Qt 4.2 layout) values from a byte slice.
type Decoder struct {
	buf []byte
	off int
}

// NewDecoder returns a decoder over data.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{buf: data}
}

// Remaining is the number of unread bytes.
func (d *Decoder) Remaining() int { return len(d.buf) - d.off }

func (d *Decoder) take(n int) ([]byte, error) {
	if n < 0 || d.Remaining() < n {
		return nil, ErrTruncated
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b, nil
}

func (d *Decoder) Uint8() (uint8, error) {
	b, err := d.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Decoder) Uint16() (uint16, error) {
	b, err := d.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (d *Decoder) Uint32() (uint32, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (d *Decoder) Uint64() (uint64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (d *Decoder) Int32() (int32, error) {
	v, err := d.Uint32()
	return int32(v), err
}

func (d *Decoder) Int16() (int16, error) {
	v, err := d.Uint16()
	return int16(v), err
}

// ByteArray reads a QByteArray. A null array decodes as nil.
func (d *Decoder) ByteArray() ([]byte, error) {
	n, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	if n == nullLength {
		return nil, nil
	}
	b, err := d.take(int(n))
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

// String reads a QString (UTF-16BE).
func (d *Decoder) String() (string, error) {
	n, err := d.Uint32()
	if err != nil {
		return "", err
	}
	if n == nullLength {
		return "", nil
	}
	if n%2 != 0 {
		return "", fmt.Errorf("%w: odd QString length %d", ErrBadMessage, n)
	}
	b, err := d.take(int(n))
	if err != nil {
		return "", err
	}
	units := make([]uint16, n/2)
	for i := range units {
		units[i] = binary.BigEndian.Uint16(b[2*i:])
	}
	return string(utf16.Decode(units)), nil
}

func (d *Decoder) stringList() ([]string, error) {
	n, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, min(int(n), d.Remaining()/4))
	for range n {
		s, err := d.String()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (d *Decoder) dateTime() (time.Time, error) {
	day, err := d.Uint32()
	if err != nil {
		return time.Time{}, err
	}
	msecs, err := d.Uint32()
	if err != nil {
		return time.Time{}, err
	}
	if _, err := d.Uint8(); err != nil {
		return time.Time{}, err
	}
	if day == 0 || msecs == nullLength {
		return time.Time{}, nil
	}
	days := int64(day) - julianEpoch
	return time.UnixMilli(days*86400*1000 + int64(msecs)).UTC(), nil
}

// List reads a bare QVariantList (count followed by variants).
func (d *Decoder) List() (VariantList, error) {
	n, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	out := make(VariantList, 0, min(int(n), d.Remaining()/5))
	for range n {
		v, err := d.Variant()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Map reads a bare QVariantMap.
func (d *Decoder) Map() (VariantMap, error) {
	n, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	out := make(VariantMap, min(int(n), d.Remaining()/9))
	for range n {
		k, err := d.String()
		if err != nil {
			return nil, err
		}
		v, err := d.Variant()
		if err != nil {
			return nil, fmt.Errorf("map key %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

// Variant reads a type-tagged QVariant.
func (d *Decoder) Variant() (any, error) {
	typ, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	if _, err := d.Uint8(); err != nil { // null flag; the value follows regardless
		return nil, err
	}

	switch typ {
	case typeInvalid:
		_, err := d.String()
		return nil, err
	case typeBool:
		v, err := d.Uint8()
		return v != 0, err
	case typeInt, typeLong:
		return d.Int32()
	case typeUInt:
		return d.Uint32()
	case typeLongLong:
		v, err := d.Uint64()
		return int64(v), err
	case typeULongLong:
		return d.Uint64()
	case typeShort:
		return d.Int16()
	case typeUShort:
		return d.Uint16()
	case typeChar:
		v, err := d.Uint8()
		return int8(v), err
	case typeUChar:
		return d.Uint8()
	case typeMap:
		return d.Map()
	case typeList:
		return d.List()
	case typeString:
		return d.String()
	case typeStringList:
		return d.stringList()
	case typeByteArray:
		return d.ByteArray()
	case typeTime:
		v, err := d.Uint32()
		if err != nil || v == nullLength {
			return QTime(0), err
		}
		return QTime(time.Duration(v) * time.Millisecond), nil
	case typeDateTime:
		return d.dateTime()
	case typeUser:
		name, err := d.ByteArray()
		if err != nil {
			return nil, err
		}
		return d.userType(trimNul(name))
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, typ)
	}
}

func trimNul(b []byte) string {
	for len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return string(b)
}

// Encoder writes QDataStream (Qt 4.2 layout) values.
type Encoder struct {
	buf []byte
}

// Bytes returns the encoded data.
func (e *Encoder) Bytes() []byte { return e.buf }

func (e *Encoder) Uint8(v uint8)   { e.buf = append(e.buf, v) }
func (e *Encoder) Uint16(v uint16) { e.buf = binary.BigEndian.AppendUint16(e.buf, v) }
func (e *Encoder) Uint32(v uint32) { e.buf = binary.BigEndian.AppendUint32(e.buf, v) }
func (e *Encoder) Uint64(v uint64) { e.buf = binary.BigEndian.AppendUint64(e.buf, v) }
func (e *Encoder) Int32(v int32)   { e.Uint32(uint32(v)) }
func (e *Encoder) Int16(v int16)   { e.Uint16(uint16(v)) }

// ByteArray writes a QByteArray; nil is written as a null array.
func (e *Encoder) ByteArray(b []byte) {
	if b == nil {
		e.Uint32(nullLength)
		return
	}
	e.Uint32(uint32(len(b)))
	e.buf = append(e.buf, b...)
}

// String writes a QString.
func (e *Encoder) String(s string) {
	units := utf16.Encode([]rune(s))
	e.Uint32(uint32(len(units) * 2))
	for _, u := range units {
		e.Uint16(u)
	}
}

func (e *Encoder) dateTime(t time.Time) {
	if t.IsZero() {
		e.Uint32(0)
		e.Uint32(nullLength)
		e.Uint8(timeSpecUTC)
		return
	}
	ms := t.UnixMilli()
	days := ms / (86400 * 1000)
	rem := ms % (86400 * 1000)
	if rem < 0 {
		days--
		rem += 86400 * 1000
	}
	e.Uint32(uint32(days + julianEpoch))
	e.Uint32(uint32(rem))
	e.Uint8(timeSpecUTC)
}

// List writes a bare QVariantList.
func (e *Encoder) List(l VariantList) error {
	e.Uint32(uint32(len(l)))
	for i, v := range l {
		if err := e.Variant(v); err != nil {
			return fmt.Errorf("list item %d: %w", i, err)
		}
	}
	return nil
}

// Map writes a bare QVariantMap. Keys are written in sorted order, as a
// QMap would.
func (e *Encoder) Map(m VariantMap) error {
	e.Uint32(uint32(len(m)))
	for _, k := range m.Keys() {
		e.String(k)
		if err := e.Variant(m[k]); err != nil {
			return fmt.Errorf("map key %q: %w", k, err)
		}
	}
	return nil
}

func (e *Encoder) header(typ uint32) {
	e.Uint32(typ)
	e.Uint8(0)
}

// Variant writes v as a type-tagged QVariant.
func (e *Encoder) Variant(v any) error {
	switch val := v.(type) {
	case nil:
		e.Uint32(typeInvalid)
		e.Uint8(1)
		e.Uint32(nullLength)
	case bool:
		e.header(typeBool)
		if val {
			e.Uint8(1)
		} else {
			e.Uint8(0)
		}
	case int:
		if val < math.MinInt32 || val > math.MaxInt32 {
			return fmt.Errorf("%w: int %d overflows int32", ErrUnencodable, val)
		}
		e.header(typeInt)
		e.Int32(int32(val))
	case int32:
		e.header(typeInt)
		e.Int32(val)
	case uint32:
		e.header(typeUInt)
		e.Uint32(val)
	case int64:
		e.header(typeLongLong)
		e.Uint64(uint64(val))
	case uint64:
		e.header(typeULongLong)
		e.Uint64(val)
	case int16:
		e.header(typeShort)
		e.Int16(val)
	case uint16:
		e.header(typeUShort)
		e.Uint16(val)
	case int8:
		e.header(typeChar)
		e.Uint8(uint8(val))
	case uint8:
		e.header(typeUChar)
		e.Uint8(val)
	case string:
		e.header(typeString)
		e.String(val)
	case []string:
		e.header(typeStringList)
		e.Uint32(uint32(len(val)))
		for _, s := range val {
			e.String(s)
		}
	case []byte:
		e.header(typeByteArray)
		e.ByteArray(val)
	case VariantList:
		e.header(typeList)
		return e.List(val)
	case VariantMap:
		e.header(typeMap)
		return e.Map(val)
	case QTime:
		e.header(typeTime)
		e.Uint32(uint32(time.Duration(val) / time.Millisecond))
	case time.Time:
		e.header(typeDateTime)
		e.dateTime(val)
	default:
		return e.userType(v)
	}
	return nil
}
