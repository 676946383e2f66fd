package gt3x

import "time"

// Accumulator collects totals over one decode pass. The Reader owns one and
// hands out copies; nothing here is shared between files.
type Accumulator struct {
	Records        int64
	RecordsByType  map[uint8]int64
	Samples        int64
	SamplesByEnc   map[Encoding]int64
	FirstSample    time.Time
	LastSample     time.Time
	lastRecordTime time.Time
	haveRecord     bool
}

func newAccumulator() Accumulator {
	return Accumulator{
		RecordsByType: make(map[uint8]int64),
		SamplesByEnc:  make(map[Encoding]int64),
	}
}

// addRecord counts rec and reports whether its base time went backwards.
func (a *Accumulator) addRecord(rec Record, base time.Time) (prev time.Time, regressed bool) {
	a.Records++
	a.RecordsByType[rec.Type]++
	prev = a.lastRecordTime
	regressed = a.haveRecord && base.Before(prev)
	a.lastRecordTime = base
	a.haveRecord = true
	return prev, regressed
}

func (a *Accumulator) addSamples(enc Encoding, n int, first, last time.Time) {
	if n == 0 {
		return
	}
	if a.Samples == 0 {
		a.FirstSample = first
	}
	a.Samples += int64(n)
	a.SamplesByEnc[enc] += int64(n)
	a.LastSample = last
}

// Clone returns a copy that does not share maps with a.
func (a Accumulator) Clone() Accumulator {
	out := a
	out.RecordsByType = make(map[uint8]int64, len(a.RecordsByType))
	for k, v := range a.RecordsByType {
		out.RecordsByType[k] = v
	}
	out.SamplesByEnc = make(map[Encoding]int64, len(a.SamplesByEnc))
	for k, v := range a.SamplesByEnc {
		out.SamplesByEnc[k] = v
	}
	return out
}
