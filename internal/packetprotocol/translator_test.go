package packetprotocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTranslator_PrimitivesRoundTrip(t *testing.T) {
	w := NewWriter()
	b := true
	by := byte(0x7f)
	sh := int16(-1234)
	in := int32(987654321)
	lo := int64(-1234567890123)
	do := 3.14159265
	s := "hello, world"
	ts := 90 * time.Second
	dt := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	w.Bool(&b)
	w.Byte(&by)
	w.Short(&sh)
	w.Int(&in)
	w.Long(&lo)
	w.Double(&do)
	w.String(&s)
	w.TimeSpan(&ts)
	w.DateTime(&dt)

	r := NewReader(w.Bytes())
	var b2 bool
	var by2 byte
	var sh2 int16
	var in2 int32
	var lo2 int64
	var do2 float64
	var s2 string
	var ts2 time.Duration
	var dt2 time.Time

	r.Bool(&b2)
	r.Byte(&by2)
	r.Short(&sh2)
	r.Int(&in2)
	r.Long(&lo2)
	r.Double(&do2)
	r.String(&s2)
	r.TimeSpan(&ts2)
	r.DateTime(&dt2)

	assert.Equal(t, b, b2)
	assert.Equal(t, by, by2)
	assert.Equal(t, sh, sh2)
	assert.Equal(t, in, in2)
	assert.Equal(t, lo, lo2)
	assert.Equal(t, do, do2)
	assert.Equal(t, s, s2)
	assert.Equal(t, ts, ts2)
	assert.True(t, dt.Equal(dt2))
}

func TestTranslator_NullableString(t *testing.T) {
	w := NewWriter()
	var present *string
	s := "present"
	present = &s
	var absent *string

	w.NullableString(&present)
	w.NullableString(&absent)

	r := NewReader(w.Bytes())
	var gotPresent, gotAbsent *string
	r.NullableString(&gotPresent)
	r.NullableString(&gotAbsent)

	assert.NotNil(t, gotPresent)
	assert.Equal(t, "present", *gotPresent)
	assert.Nil(t, gotAbsent)
}

func TestTranslator_StringDictionaryPreservesOrderAndValues(t *testing.T) {
	w := NewWriter()
	keys := []string{"b", "a", "c"}
	values := map[string]string{"a": "1", "b": "2", "c": "3"}
	w.StringDictionary(&keys, &values)

	r := NewReader(w.Bytes())
	var gotKeys []string
	var gotValues map[string]string
	r.StringDictionary(&gotKeys, &gotValues)

	assert.Equal(t, []string{"b", "a", "c"}, gotKeys)
	assert.Equal(t, values, gotValues)
}

func TestTranslator_StringSetRoundTrips(t *testing.T) {
	w := NewWriter()
	set := map[string]struct{}{"x": {}, "y": {}, "z": {}}
	w.StringSet(&set)

	r := NewReader(w.Bytes())
	var got map[string]struct{}
	r.StringSet(&got)

	assert.Equal(t, set, got)
}

func TestTranslator_VersionQuadRoundTrips(t *testing.T) {
	w := NewWriter()
	maj, min, patch, rev := int32(17), int32(0), int32(3), int32(42)
	w.VersionQuad(&maj, &min, &patch, &rev)

	r := NewReader(w.Bytes())
	var maj2, min2, patch2, rev2 int32
	r.VersionQuad(&maj2, &min2, &patch2, &rev2)

	assert.Equal(t, [4]int32{maj, min, patch, rev}, [4]int32{maj2, min2, patch2, rev2})
}
