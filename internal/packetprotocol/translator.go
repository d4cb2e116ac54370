package packetprotocol

import (
	"bytes"
	"encoding/binary"
	"math"
	"time"

	"github.com/buildmesh/enginecore/internal/core"
)

// Translator reads or writes primitive and composite fields for one
// packet. A composite type implements Translatable and is handed
// the Translator so its own translate method can branch on Writing to
// either assign (read) or serialize (write) its fields with the identical
// call sequence in both directions.
type Translator struct {
	Writing bool
	buf     *bytes.Buffer
	err     error
}

// Translatable is any composite type that knows how to read or write
// itself through a Translator, by invoking its own Translate method.
type Translatable interface {
	Translate(tr *Translator)
}

// NewWriter creates a Translator that serializes into an internal buffer.
func NewWriter() *Translator {
	return &Translator{Writing: true, buf: new(bytes.Buffer)}
}

// NewReader creates a Translator that deserializes from payload.
func NewReader(payload []byte) *Translator {
	return &Translator{Writing: false, buf: bytes.NewBuffer(payload)}
}

// Bytes returns the accumulated payload of a writer Translator.
func (t *Translator) Bytes() []byte { return t.buf.Bytes() }

// Err returns the first error encountered, if any.
func (t *Translator) Err() error { return t.err }

func (t *Translator) fail(err error) {
	if t.err == nil {
		t.err = core.NewBuildError(core.ErrorKindSerializationFailure, err.Error())
	}
}

func (t *Translator) writeRaw(p []byte) {
	if t.err != nil {
		return
	}
	if _, err := t.buf.Write(p); err != nil {
		t.fail(err)
	}
}

func (t *Translator) readRaw(n int) []byte {
	if t.err != nil {
		return make([]byte, n)
	}
	p := make([]byte, n)
	if _, err := t.buf.Read(p); err != nil {
		t.fail(err)
	}
	return p
}

// Bool translates a bool field in place.
func (t *Translator) Bool(v *bool) {
	if t.Writing {
		b := byte(0)
		if *v {
			b = 1
		}
		t.writeRaw([]byte{b})
		return
	}
	*v = t.readRaw(1)[0] != 0
}

// Byte translates a single byte field.
func (t *Translator) Byte(v *byte) {
	if t.Writing {
		t.writeRaw([]byte{*v})
		return
	}
	*v = t.readRaw(1)[0]
}

// Short translates an int16 field.
func (t *Translator) Short(v *int16) {
	if t.Writing {
		p := make([]byte, 2)
		binary.BigEndian.PutUint16(p, uint16(*v))
		t.writeRaw(p)
		return
	}
	*v = int16(binary.BigEndian.Uint16(t.readRaw(2)))
}

// Int translates an int32 field.
func (t *Translator) Int(v *int32) {
	if t.Writing {
		p := make([]byte, 4)
		binary.BigEndian.PutUint32(p, uint32(*v))
		t.writeRaw(p)
		return
	}
	*v = int32(binary.BigEndian.Uint32(t.readRaw(4)))
}

// Long translates an int64 field.
func (t *Translator) Long(v *int64) {
	if t.Writing {
		p := make([]byte, 8)
		binary.BigEndian.PutUint64(p, uint64(*v))
		t.writeRaw(p)
		return
	}
	*v = int64(binary.BigEndian.Uint64(t.readRaw(8)))
}

// Double translates a float64 field.
func (t *Translator) Double(v *float64) {
	bits := int64(0)
	if t.Writing {
		bits = int64(math.Float64bits(*v))
	}
	t.Long(&bits)
	if !t.Writing {
		*v = math.Float64frombits(uint64(bits))
	}
}

// String translates a length-prefixed UTF-8 string (zero-length and
// absent are the same empty string on this wire; see NullableString for
// fields that must distinguish "" from "not present").
func (t *Translator) String(v *string) {
	length := int32(0)
	if t.Writing {
		length = int32(len(*v))
	}
	t.Int(&length)
	if t.Writing {
		t.writeRaw([]byte(*v))
		return
	}
	*v = string(t.readRaw(int(length)))
}

// NullableString translates a null-aware string: a leading bool flags
// presence, followed by a length-prefixed payload when present.
func (t *Translator) NullableString(v **string) {
	hasValue := *v != nil
	t.Bool(&hasValue)
	if !hasValue {
		if !t.Writing {
			*v = nil
		}
		return
	}
	var s string
	if t.Writing {
		s = **v
	}
	t.String(&s)
	if !t.Writing {
		*v = &s
	}
}

// TimeSpan translates a time.Duration as nanoseconds.
func (t *Translator) TimeSpan(v *time.Duration) {
	n := int64(0)
	if t.Writing {
		n = int64(*v)
	}
	t.Long(&n)
	if !t.Writing {
		*v = time.Duration(n)
	}
}

// DateTime translates a time.Time as Unix nanoseconds UTC.
func (t *Translator) DateTime(v *time.Time) {
	n := int64(0)
	if t.Writing {
		n = v.UTC().UnixNano()
	}
	t.Long(&n)
	if !t.Writing {
		*v = time.Unix(0, n).UTC()
	}
}

// Culture translates a culture identifier (e.g. "en-US") as a string.
func (t *Translator) Culture(v *string) { t.String(v) }

// VersionTriple translates a {major, minor, patch} version.
func (t *Translator) VersionTriple(major, minor, patch *int32) {
	t.Int(major)
	t.Int(minor)
	t.Int(patch)
}

// VersionQuad translates a {major, minor, patch, revision} version.
func (t *Translator) VersionQuad(major, minor, patch, revision *int32) {
	t.Int(major)
	t.Int(minor)
	t.Int(patch)
	t.Int(revision)
}

// StringArray translates a length-prefixed []string.
func (t *Translator) StringArray(v *[]string) {
	count := int32(0)
	if t.Writing {
		count = int32(len(*v))
	}
	t.Int(&count)
	if !t.Writing {
		*v = make([]string, count)
	}
	for i := range *v {
		t.String(&(*v)[i])
	}
}

// StringList is an alias of StringArray: the wire shape for List<string>
// and string[] is identical (length-prefixed elements).
func (t *Translator) StringList(v *[]string) { t.StringArray(v) }

// StringDictionary translates a length-prefixed ordered string->string
// dictionary. Keys compare case-insensitively throughout this module;
// ordering is preserved via a parallel key slice so round-tripping is
// deterministic.
func (t *Translator) StringDictionary(keys *[]string, values *map[string]string) {
	count := int32(0)
	if t.Writing {
		count = int32(len(*keys))
	}
	t.Int(&count)
	if !t.Writing {
		*keys = make([]string, count)
		*values = make(map[string]string, count)
	}
	for i := int32(0); i < count; i++ {
		var k, v string
		if t.Writing {
			k = (*keys)[i]
			v = (*values)[k]
		}
		t.String(&k)
		t.String(&v)
		if !t.Writing {
			(*keys)[i] = k
			(*values)[k] = v
		}
	}
}

// StringSet translates a length-prefixed hash set of strings (no
// duplicate-preservation guarantee on the wire, per "hash sets").
func (t *Translator) StringSet(v *map[string]struct{}) {
	count := int32(0)
	var keys []string
	if t.Writing {
		for k := range *v {
			keys = append(keys, k)
		}
		count = int32(len(keys))
	}
	t.Int(&count)
	if !t.Writing {
		*v = make(map[string]struct{}, count)
	}
	for i := int32(0); i < count; i++ {
		var k string
		if t.Writing {
			k = keys[i]
		}
		t.String(&k)
		if !t.Writing {
			(*v)[k] = struct{}{}
		}
	}
}
