package protocol

import (
	"errors"
	"testing"
)

func TestStatusSeverityOrder(t *testing.T) {
	ladder := []Status{
		StatusGood,
		StatusCancel,
		StatusErrRetry,
		StatusErrWait,
		StatusErrNext,
		StatusErrCrit,
	}

	for i := 1; i < len(ladder); i++ {
		if ladder[i].Severity() <= ladder[i-1].Severity() {
			t.Errorf("%s.Severity() = %d, want > %s.Severity() = %d",
				ladder[i], ladder[i].Severity(), ladder[i-1], ladder[i-1].Severity())
		}
	}

	if StatusCancel.Severity() != StatusComplete.Severity() {
		t.Error("Cancel and Complete should share a rung")
	}
	if StatusDeferred.Severity() >= StatusGood.Severity() {
		t.Error("Deferred must rank below Good")
	}
}

func TestWorst(t *testing.T) {
	tests := []struct {
		name string
		a, b Status
		want Status
	}{
		{"good then retry", StatusGood, StatusErrRetry, StatusErrRetry},
		{"crit then good", StatusErrCrit, StatusGood, StatusErrCrit},
		{"wait then next", StatusErrWait, StatusErrNext, StatusErrNext},
		{"cancel then complete keeps first", StatusCancel, StatusComplete, StatusCancel},
		{"deferred then good", StatusDeferred, StatusGood, StatusGood},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Worst(tt.a, tt.b); got != tt.want {
				t.Errorf("Worst(%s, %s) = %s, want %s", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestStatusIsError(t *testing.T) {
	for _, s := range []Status{StatusDeferred, StatusGood, StatusCancel, StatusComplete} {
		if s.IsError() {
			t.Errorf("%s.IsError() = true, want false", s)
		}
	}
	for _, s := range []Status{StatusErrRetry, StatusErrWait, StatusErrNext, StatusErrCrit} {
		if !s.IsError() {
			t.Errorf("%s.IsError() = false, want true", s)
		}
	}
}

func TestStatusText(t *testing.T) {
	for s := StatusDeferred; s <= StatusErrCrit; s++ {
		text, err := s.MarshalText()
		if err != nil {
			t.Fatalf("%d.MarshalText() error = %v", s, err)
		}
		var got Status
		if err := got.UnmarshalText(text); err != nil || got != s {
			t.Errorf("UnmarshalText(%q) = %d, %v; want %d", text, got, err, s)
		}
	}
	if _, err := ParseStatus("maybe"); err == nil {
		t.Error("ParseStatus(maybe) returned nil error")
	}

	var k Kind
	if err := k.UnmarshalText([]byte("data_pmt")); err != nil || k != KindDataPmt {
		t.Errorf("Kind.UnmarshalText(data_pmt) = %d, %v", k, err)
	}
	if _, err := ParseKind("kind(99)"); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("ParseKind(kind(99)) error = %v, want ErrUnknownKind", err)
	}
}
