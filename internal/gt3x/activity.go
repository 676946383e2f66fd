package gt3x

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// ActivitySample is one raw accelerometer reading in device units.
type ActivitySample struct {
	X, Y, Z int32
}

// Encoding identifies a payload sample layout.
type Encoding int

const (
	// EncodingAuto selects a layout from the record kind and payload size.
	// Decode also reports it when a record produced no samples.
	EncodingAuto Encoding = iota
	// EncodingShort8 is a single 3-byte sample; each axis is an unsigned
	// byte offset by 128.
	EncodingShort8
	// EncodingInt16 is x,y,z as signed 16-bit big-endian, 6 bytes per sample.
	EncodingInt16
	// EncodingInt24 is x,y,z as signed 24-bit big-endian, 9 bytes per sample.
	EncodingInt24
	// EncodingPacked12 packs two samples (six 12-bit two's-complement values,
	// most significant bit first) into 9 bytes. An odd trailing sample takes
	// 5 bytes with the last low nibble unused.
	EncodingPacked12
)

const (
	short8Width  = 3
	int16Width   = 6
	int24Width   = 9
	packed12Pair = 9
	short8Offset = 128
)

var encodingNames = map[Encoding]string{
	EncodingAuto:     "auto",
	EncodingShort8:   "short8",
	EncodingInt16:    "int16",
	EncodingInt24:    "int24",
	EncodingPacked12: "packed12",
}

func (e Encoding) String() string {
	if s, ok := encodingNames[e]; ok {
		return s
	}
	return fmt.Sprintf("Encoding(%d)", int(e))
}

// ParseEncoding is the inverse of Encoding.String. The empty string is auto.
func ParseEncoding(s string) (Encoding, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return EncodingAuto, nil
	}
	for e, name := range encodingNames {
		if name == s {
			return e, nil
		}
	}
	return EncodingAuto, fmt.Errorf("unknown payload encoding %q (want auto, short8, int16, int24 or packed12)", s)
}

// SampleCount returns how many samples a payload of size bytes holds in
// this encoding, and whether the size is valid for it.
func (e Encoding) SampleCount(size int) (int, bool) {
	switch e {
	case EncodingShort8:
		return 1, size == short8Width
	case EncodingInt16:
		return size / int16Width, size > 0 && size%int16Width == 0
	case EncodingInt24:
		return size / int24Width, size > 0 && size%int24Width == 0
	case EncodingPacked12:
		if size > 0 && size%packed12Pair == 0 {
			return size / packed12Pair * 2, true
		}
		if size > 0 && (2*size-1)%packed12Pair == 0 {
			return (2*size - 1) / packed12Pair, true
		}
		return 0, false
	case EncodingAuto:
		return 0, false
	}
	return 0, false
}

// SelectEncoding picks the layout for an activity payload. Legacy records
// prefer the wide formats, modern records the 16-bit one; the first valid
// candidate wins.
func SelectEncoding(kind RecordKind, size int) (Encoding, bool) {
	var candidates []Encoding
	switch kind {
	case KindLegacyActivity:
		if size == short8Width {
			return EncodingShort8, true
		}
		candidates = []Encoding{EncodingInt24, EncodingInt16, EncodingPacked12}
	case KindModernActivity:
		candidates = []Encoding{EncodingInt16, EncodingPacked12}
	case KindOther:
		return EncodingAuto, false
	}
	for _, e := range candidates {
		if _, ok := e.SampleCount(size); ok {
			return e, true
		}
	}
	return EncodingAuto, false
}

// ActivityDecoder turns activity records into raw samples. The zero value
// selects encodings automatically; set Force to pin one layout for every
// activity record. The returned slice is reused by the next Decode call.
type ActivityDecoder struct {
	Force Encoding
	buf   []ActivitySample
}

// Decode decodes rec. Records that are not activity records, and empty
// activity payloads, yield no samples and no error.
func (d *ActivityDecoder) Decode(rec Record) ([]ActivitySample, Encoding, error) {
	kind := rec.Kind()
	if kind == KindOther || len(rec.Payload) == 0 {
		return nil, EncodingAuto, nil
	}

	enc := d.Force
	var ok bool
	if enc == EncodingAuto {
		enc, ok = SelectEncoding(kind, len(rec.Payload))
	} else {
		_, ok = enc.SampleCount(len(rec.Payload))
	}
	if !ok {
		return nil, EncodingAuto, &UnknownPayloadFormatError{
			Offset:     rec.Offset,
			RecordType: rec.Type,
			Size:       len(rec.Payload),
		}
	}

	n, _ := enc.SampleCount(len(rec.Payload))
	if cap(d.buf) < n {
		d.buf = make([]ActivitySample, n)
	}
	out := d.buf[:n]
	p := rec.Payload

	switch enc {
	case EncodingShort8:
		out[0] = ActivitySample{
			X: int32(p[0]) - short8Offset,
			Y: int32(p[1]) - short8Offset,
			Z: int32(p[2]) - short8Offset,
		}
	case EncodingInt16:
		for i := range out {
			b := p[i*int16Width:]
			out[i] = ActivitySample{
				X: int32(int16(binary.BigEndian.Uint16(b[0:2]))),
				Y: int32(int16(binary.BigEndian.Uint16(b[2:4]))),
				Z: int32(int16(binary.BigEndian.Uint16(b[4:6]))),
			}
		}
	case EncodingInt24:
		for i := range out {
			b := p[i*int24Width:]
			out[i] = ActivitySample{X: int24(b[0:3]), Y: int24(b[3:6]), Z: int24(b[6:9])}
		}
	case EncodingPacked12:
		unpack12(p, out)
	case EncodingAuto:
		return nil, EncodingAuto, fmt.Errorf("activity decoder: no encoding selected")
	}
	return out, enc, nil
}

// DecodeActivity decodes one record into a freshly allocated slice.
func DecodeActivity(rec Record) ([]ActivitySample, Encoding, error) {
	var d ActivityDecoder
	return d.Decode(rec)
}

func int24(b []byte) int32 {
	v := uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
	return int32(v<<8) >> 8
}

func signExtend12(v uint16) int32 {
	return int32(uint32(v)<<20) >> 20
}

// unpack12 reads 12-bit values from p as a big-endian bit stream, three per
// sample. len(out) values are produced; any trailing nibble is ignored.
func unpack12(p []byte, out []ActivitySample) {
	value := func(k int) int32 {
		bit := k * 12
		i := bit / 8
		var v uint16
		if bit%8 == 0 {
			v = uint16(p[i])<<4 | uint16(p[i+1])>>4
		} else {
			v = uint16(p[i]&0x0F)<<8 | uint16(p[i+1])
		}
		return signExtend12(v)
	}
	for s := range out {
		out[s] = ActivitySample{X: value(3 * s), Y: value(3*s + 1), Z: value(3*s + 2)}
	}
}
