package protocol

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

func testTarget() Target {
	return Target{
		Auto:     true,
		ID:       4021,
		Name:     "BD+20 307",
		RA:       RightAscension{Hours: 1, Minutes: 55, Seconds: 12.25},
		Dec:      Declination{Negative: true, Degrees: 0, Minutes: 30, Seconds: 7.5},
		AdjRA:    -1.5,
		AdjDec:   2.25,
		Centered: true,
		Focus:    -120,
	}
}

func TestEncodeDecodeDataPmt(t *testing.T) {
	in := New(&DataPmt{
		Target:       testTarget(),
		SamplePeriod: 250 * time.Millisecond,
		Prebin:       4,
		Repetitions:  600,
		Filter:       2,
		Aperture:     5,
	})
	in.Status = StatusErrWait
	in.Stage = 3

	rec, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if len(rec) != RecordSize {
		t.Fatalf("len(record) = %d, want %d", len(rec), RecordSize)
	}

	out, err := Decode(rec)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if out.Kind() != KindDataPmt {
		t.Fatalf("Kind() = %s, want %s", out.Kind(), KindDataPmt)
	}
	if out.Status != StatusErrWait || out.Stage != 3 {
		t.Errorf("header = (%s, %d), want (err_wait, 3)", out.Status, out.Stage)
	}

	got := out.Payload.(*DataPmt)
	want := in.Payload.(*DataPmt)
	if got.Target != want.Target {
		t.Errorf("Target = %+v, want %+v", got.Target, want.Target)
	}
	if got.SamplePeriod != want.SamplePeriod || got.Prebin != 4 || got.Repetitions != 600 {
		t.Errorf("run parameters = (%v, %d, %d)", got.SamplePeriod, got.Prebin, got.Repetitions)
	}
	if got.Filter != 2 || got.Aperture != 5 {
		t.Errorf("Filter/Aperture = %d/%d, want 2/5", got.Filter, got.Aperture)
	}
}

func TestEncodeDecodeSlotNames(t *testing.T) {
	in := New(&PmtCapabilities{
		Filters:   []string{"U", "B", "V", "R", "I"},
		Apertures: []string{"10", "15", "20", "30"},
		EHTVolts:  1250,
	})

	rec, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	out, err := Decode(rec)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	got := out.Payload.(*PmtCapabilities)
	if strings.Join(got.Filters, ",") != "U,B,V,R,I" {
		t.Errorf("Filters = %v", got.Filters)
	}
	if len(got.Apertures) != 4 || got.EHTVolts != 1250 {
		t.Errorf("Apertures = %v, EHTVolts = %d", got.Apertures, got.EHTVolts)
	}
}

func TestEncodeTruncatesLongNames(t *testing.T) {
	tgt := testTarget()
	tgt.Name = strings.Repeat("x", NameSize+10)

	rec, err := Encode(New(&TargetSet{Target: tgt}))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	out, err := Decode(rec)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if name := out.Payload.(*TargetSet).Name; len(name) != NameSize {
		t.Errorf("len(Name) = %d, want %d", len(name), NameSize)
	}
}

func TestEncodeRejectsEmptyMessage(t *testing.T) {
	_, err := Encode(&Message{})
	if !errors.Is(err, ErrUnknownKind) {
		t.Errorf("Encode(empty) error = %v, want ErrUnknownKind", err)
	}
}

func TestDecodeErrors(t *testing.T) {
	valid, err := Encode(New(&Quit{Auto: true}))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	badMagic := append([]byte(nil), valid...)
	badMagic[0] = 0

	badKind := append([]byte(nil), valid...)
	badKind[2] = 99

	tests := []struct {
		name string
		rec  []byte
		want error
	}{
		{"short", valid[:RecordSize-1], ErrShortRecord},
		{"bad magic", badMagic, ErrBadMagic},
		{"unknown kind", badKind, ErrUnknownKind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.rec); !errors.Is(err, tt.want) {
				t.Errorf("Decode() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestEveryKindFitsInRecord(t *testing.T) {
	for _, k := range Kinds {
		p, err := newPayload(k)
		if err != nil {
			t.Fatalf("newPayload(%s) error = %v", k, err)
		}
		if _, err := Encode(New(p)); err != nil {
			t.Errorf("Encode(%s) error = %v", k, err)
		}
	}
}

func TestSexagesimal(t *testing.T) {
	ra := RAFromHours(13.5125)
	if ra.Hours != 13 || ra.Minutes != 30 || math.Abs(ra.Seconds-45) > 1e-6 {
		t.Errorf("RAFromHours(13.5125) = %v", ra)
	}
	if math.Abs(ra.DecimalHours()-13.5125) > 1e-9 {
		t.Errorf("DecimalHours() = %v, want 13.5125", ra.DecimalHours())
	}

	if got := RAFromHours(-1).DecimalHours(); math.Abs(got-23) > 1e-9 {
		t.Errorf("RAFromHours(-1).DecimalHours() = %v, want 23", got)
	}

	dec := DecFromDegrees(-0.5)
	if !dec.Negative || dec.Degrees != 0 || dec.Minutes != 30 {
		t.Errorf("DecFromDegrees(-0.5) = %v", dec)
	}
	if got := dec.DecimalDegrees(); math.Abs(got+0.5) > 1e-9 {
		t.Errorf("DecimalDegrees() = %v, want -0.5", got)
	}
	if dec.String() != "-00:30:00.0" {
		t.Errorf("String() = %q", dec.String())
	}
}
