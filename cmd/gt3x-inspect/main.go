// Command gt3x-inspect surveys the records of a .gt3x file: how many of each
// type, what the first activity payloads look like, and which diagnostics a
// full decode reports.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/banshee-data/gt3x/internal/gt3x"
	"github.com/banshee-data/gt3x/internal/monitoring"
	"github.com/banshee-data/gt3x/internal/version"
)

var (
	previewBytes = flag.Int("preview", 32, "Bytes of each first activity payload to show")
	encodingFlag = flag.String("encoding", "", "Force a payload encoding for the decode pass")
	debugFlag    = flag.Bool("debug", false, "Log every record")
	versionFlag  = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: gt3x-inspect [flags] <input.gt3x>\n\nFlags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if *versionFlag {
		fmt.Println("gt3x-inspect", version.String())
		return
	}
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	monitoring.SetDebug(*debugFlag)

	enc, err := gt3x.ParseEncoding(*encodingFlag)
	if err != nil {
		log.Fatalf("gt3x-inspect: %v", err)
	}
	s, err := inspect(flag.Arg(0), *previewBytes, enc)
	if s != nil {
		s.WriteTo(os.Stdout)
	}
	if err != nil {
		log.Fatalf("gt3x-inspect: %v", err)
	}
}

// firstRecord is the first record seen of one activity type.
type firstRecord struct {
	Type       uint8
	Offset     int64
	Timestamp  uint32
	Size       int
	Preview    []byte
	Candidates map[gt3x.Encoding]int // encodings the size is valid for, with sample counts
	Selected   gt3x.Encoding         // EncodingAuto when none fits
}

// survey is the result of inspecting one file.
type survey struct {
	Path        string
	Members     []string
	Device      gt3x.DeviceInfo
	Recording   gt3x.RecordingInfo
	TypeCounts  map[uint8]int64
	Bytes       map[uint8]int64
	First       []firstRecord
	ScanErr     error
	Stats       gt3x.Accumulator
	Diagnostics gt3x.Diagnostics
}

var candidateEncodings = []gt3x.Encoding{gt3x.EncodingShort8, gt3x.EncodingInt16, gt3x.EncodingInt24, gt3x.EncodingPacked12}

// inspect runs a raw record survey and then a full decode pass.
func inspect(path string, preview int, enc gt3x.Encoding) (*survey, error) {
	c, err := gt3x.OpenContainer(path)
	if err != nil {
		return nil, err
	}
	s := &survey{
		Path:       path,
		Members:    c.Members(),
		TypeCounts: make(map[uint8]int64),
		Bytes:      make(map[uint8]int64),
	}
	err = s.scan(c, preview)
	c.Close()
	if err != nil {
		return s, err
	}

	r, err := gt3x.Open(path, gt3x.WithEncoding(enc), gt3x.WithRaw(true))
	if err != nil {
		return s, err
	}
	defer r.Close()
	s.Device = r.Device()
	for r.Next() {
	}
	s.Recording = r.Recording()
	s.Stats = r.Stats()
	s.Diagnostics = r.Diagnostics()
	return s, nil
}

func (s *survey) scan(c *gt3x.Container, preview int) error {
	rc, err := c.OpenMember(gt3x.LogMember)
	if err != nil {
		return err
	}
	defer rc.Close()

	seen := make(map[uint8]bool)
	sc := gt3x.NewRecordScanner(rc)
	for sc.Next() {
		rec := sc.Record()
		s.TypeCounts[rec.Type]++
		s.Bytes[rec.Type] += int64(len(rec.Payload))
		if rec.Kind() == gt3x.KindOther || seen[rec.Type] {
			continue
		}
		seen[rec.Type] = true
		s.First = append(s.First, describe(rec, preview))
	}
	// A framing error ends the survey but the decode pass still runs.
	s.ScanErr = sc.Err()
	return nil
}

func describe(rec gt3x.Record, preview int) firstRecord {
	n := min(preview, len(rec.Payload))
	f := firstRecord{
		Type:       rec.Type,
		Offset:     rec.Offset,
		Timestamp:  rec.Timestamp,
		Size:       len(rec.Payload),
		Preview:    append([]byte(nil), rec.Payload[:max(n, 0)]...),
		Candidates: make(map[gt3x.Encoding]int),
	}
	for _, e := range candidateEncodings {
		if count, ok := e.SampleCount(len(rec.Payload)); ok {
			f.Candidates[e] = count
		}
	}
	f.Selected, _ = gt3x.SelectEncoding(rec.Kind(), len(rec.Payload))
	return f
}

// WriteTo prints the survey as text.
func (s *survey) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "file:    %s\n", s.Path)
	fmt.Fprintf(&b, "members: %s\n", strings.Join(s.Members, ", "))
	if s.Device.SerialNumber != "" {
		fmt.Fprintf(&b, "device:  %s %s firmware %s, %g Hz, scale %g\n",
			s.Device.SerialNumber, s.Device.DeviceType, s.Device.FirmwareVersion,
			s.Device.SampleRate, s.Device.AccelerationScale)
	}

	types := make([]int, 0, len(s.TypeCounts))
	for t := range s.TypeCounts {
		types = append(types, int(t))
	}
	sort.Ints(types)
	fmt.Fprintln(&b, "\nrecords by type:")
	for _, t := range types {
		fmt.Fprintf(&b, "  0x%02X %-16s %8d records %10d payload bytes\n",
			t, gt3x.KindOf(uint8(t)), s.TypeCounts[uint8(t)], s.Bytes[uint8(t)])
	}
	if s.ScanErr != nil {
		fmt.Fprintf(&b, "  scan stopped: %v\n", s.ScanErr)
	}

	for _, f := range s.First {
		fmt.Fprintf(&b, "\nfirst record of type 0x%02X at offset %d: timestamp %d (%s), %d bytes\n",
			f.Type, f.Offset, f.Timestamp, gt3x.TimestampToTime(int64(f.Timestamp)).Format("2006-01-02T15:04:05Z07:00"), f.Size)
		fmt.Fprintf(&b, "  payload: %s", hex.EncodeToString(f.Preview))
		if len(f.Preview) < f.Size {
			fmt.Fprint(&b, "...")
		}
		fmt.Fprintln(&b)
		for _, e := range candidateEncodings {
			if count, ok := f.Candidates[e]; ok {
				marker := ""
				if e == f.Selected {
					marker = " (selected)"
				}
				fmt.Fprintf(&b, "  %-9s %d samples%s\n", e, count, marker)
			}
		}
		if len(f.Candidates) == 0 {
			fmt.Fprintln(&b, "  no encoding matches this size")
		}
	}

	fmt.Fprintf(&b, "\ndecoded: %d samples from %d records\n", s.Stats.Samples, s.Stats.Records)
	for _, e := range candidateEncodings {
		if n := s.Stats.SamplesByEnc[e]; n > 0 {
			fmt.Fprintf(&b, "  %-9s %d samples\n", e, n)
		}
	}
	if len(s.Diagnostics) == 0 {
		fmt.Fprintln(&b, "diagnostics: none")
	} else {
		fmt.Fprintf(&b, "diagnostics: %d\n", len(s.Diagnostics))
		for _, d := range s.Diagnostics {
			fmt.Fprintf(&b, "  %s\n", d)
		}
	}
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}
