package capability

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTables(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capabilities.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write tables: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeTables(t, `
filters   = ["U", "B", " V ", ""]
eht_volts = 1250

[ccd]
pixel_scale = 0.35
`)

	tables, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got := strings.Join(tables.Filters, ","); got != "U,B,V" {
		t.Errorf("Filters = %q, want U,B,V", got)
	}
	if got := strings.Join(tables.Apertures, ","); got != "open" {
		t.Errorf("Apertures = %q, want default", got)
	}
	if tables.EHTVolts != 1250 {
		t.Errorf("EHTVolts = %d, want 1250", tables.EHTVolts)
	}
	if tables.CCD.PixelScale != 0.35 || tables.CCD.Width != 512 {
		t.Errorf("CCD = %+v, want defaults with pixel_scale 0.35", tables.CCD)
	}

	pmt := tables.Pmt()
	pmt.Filters[0] = "X"
	if tables.Filters[0] != "U" {
		t.Error("Pmt() shares the filter slice")
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    error
	}{
		{"too many filters", `filters = ["1","2","3","4","5","6","7","8","9"]`, ErrTooManySlots},
		{"empty apertures", `apertures = []`, ErrTooManySlots},
		{"long name", `filters = ["infrared-long"]`, ErrSlotName},
		{"zero ccd", "[ccd]\nwidth = 0", ErrCCD},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeTables(t, tt.content)); !errors.Is(err, tt.want) {
				t.Errorf("Load() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("Load(missing) error = nil")
	}
}
