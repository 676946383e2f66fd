package testutil

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
)

// Field is one info.txt line. Order is preserved when written.
type Field struct {
	Key   string
	Value string
}

// FixtureEpoch is the base timestamp, in Unix seconds, used by DefaultInfo
// and most fixture records (2023-11-14T22:13:20Z).
const FixtureEpoch uint32 = 1_700_000_000

// DefaultInfo is a minimal, valid info.txt: 100 Hz, 0.004 g per unit.
func DefaultInfo() []Field {
	return []Field{
		{"Serial Number", "MOS2E12345678"},
		{"Device Type", "wGT3XBT"},
		{"Firmware", "1.9.2"},
		{"Battery Voltage", "4.12"},
		{"Sample Rate", "100"},
		{"Acceleration Scale", "0.004"},
		{"Start Date", "638356068000000000"},
		{"Stop Date", "638356104000000000"},
	}
}

// WithField returns a copy of fields with key set to value, appended when
// absent.
func WithField(fields []Field, key, value string) []Field {
	out := append([]Field(nil), fields...)
	for i := range out {
		if out[i].Key == key {
			out[i].Value = value
			return out
		}
	}
	return append(out, Field{key, value})
}

// WithoutField returns a copy of fields with key removed.
func WithoutField(fields []Field, key string) []Field {
	out := make([]Field, 0, len(fields))
	for _, f := range fields {
		if f.Key != key {
			out = append(out, f)
		}
	}
	return out
}

// InfoText renders fields as info.txt content with CRLF line endings, as
// devices write it.
func InfoText(fields []Field) []byte {
	var b bytes.Buffer
	for _, f := range fields {
		fmt.Fprintf(&b, "%s: %s\r\n", f.Key, f.Value)
	}
	return b.Bytes()
}

// Record encodes one log.bin record with a correct checksum.
func Record(recordType uint8, timestamp uint32, payload []byte) []byte {
	out := make([]byte, 8, 8+len(payload)+1)
	out[0] = 0x1E
	out[1] = recordType
	binary.LittleEndian.PutUint32(out[2:6], timestamp)
	binary.LittleEndian.PutUint16(out[6:8], uint16(len(payload)))
	out = append(out, payload...)
	var x byte
	for _, b := range out {
		x ^= b
	}
	return append(out, ^x)
}

// CorruptChecksum returns a copy of rec with its trailing checksum inverted.
func CorruptChecksum(rec []byte) []byte {
	out := append([]byte(nil), rec...)
	out[len(out)-1] = ^out[len(out)-1]
	return out
}

// Int16Payload encodes samples as big-endian signed 16-bit triples.
func Int16Payload(samples ...[3]int32) []byte {
	out := make([]byte, 0, 6*len(samples))
	for _, s := range samples {
		for _, v := range s {
			out = binary.BigEndian.AppendUint16(out, uint16(int16(v)))
		}
	}
	return out
}

// Int24Payload encodes samples as big-endian signed 24-bit triples.
func Int24Payload(samples ...[3]int32) []byte {
	out := make([]byte, 0, 9*len(samples))
	for _, s := range samples {
		for _, v := range s {
			u := uint32(v)
			out = append(out, byte(u>>16), byte(u>>8), byte(u))
		}
	}
	return out
}

// Packed12Payload writes 12-bit two's-complement values most significant bit
// first, three per sample. An odd sample count leaves the last nibble zero.
func Packed12Payload(samples ...[3]int32) []byte {
	nbits := 36 * len(samples)
	out := make([]byte, (nbits+7)/8)
	bit := 0
	for _, s := range samples {
		for _, v := range s {
			u := uint16(v) & 0x0FFF
			for k := 11; k >= 0; k-- {
				if u&(1<<k) != 0 {
					out[bit/8] |= 0x80 >> (bit % 8)
				}
				bit++
			}
		}
	}
	return out
}

// Short8Payload encodes one sample as three bytes offset by 128.
func Short8Payload(s [3]int32) []byte {
	return []byte{byte(s[0] + 128), byte(s[1] + 128), byte(s[2] + 128)}
}

// Members builds a zip archive holding the given members, in order.
func Members(t testing.TB, members ...Member) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, m := range members {
		method := zip.Deflate
		if m.Stored {
			method = zip.Store
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: m.Name, Method: method})
		if err != nil {
			t.Fatalf("create member %s: %v", m.Name, err)
		}
		if _, err := w.Write(m.Data); err != nil {
			t.Fatalf("write member %s: %v", m.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close archive: %v", err)
	}
	return buf.Bytes()
}

// Member is one archive entry. Stored members are written uncompressed, so
// their bytes can be located and altered in the finished archive.
type Member struct {
	Name   string
	Data   []byte
	Stored bool
}

// WriteGT3X writes a .gt3x file with info.txt and a log.bin made of the
// concatenated records, and returns its path.
func WriteGT3X(t testing.TB, info []Field, records ...[]byte) string {
	t.Helper()
	return WriteArchive(t, "fixture.gt3x",
		Member{Name: "info.txt", Data: InfoText(info)},
		Member{Name: "log.bin", Data: bytes.Join(records, nil)},
	)
}

// WriteArchive writes an arbitrary archive under t.TempDir.
func WriteArchive(t testing.TB, name string, members ...Member) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, Members(t, members...), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
