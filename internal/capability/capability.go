// Package capability loads the instrument capability tables: the filter and
// aperture wheel contents, the EHT supply level and the acquisition camera.
//
// Tables live in a TOML file so the instrument scientist can edit them
// without touching the service configuration:
//
//	filters   = ["U", "B", "V", "R", "I"]
//	apertures = ["10", "15", "20", "30"]
//	eht_volts = 1250
//
//	[ccd]
//	width       = 1024
//	height      = 1024
//	pixel_scale = 0.35
//
// Keys left out keep their defaults.
package capability

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/nerrad567/dti-core/internal/protocol"
)

// Validation errors.
var (
	ErrTooManySlots = errors.New("capability: too many wheel slots")
	ErrSlotName     = errors.New("capability: invalid slot name")
	ErrCCD          = errors.New("capability: invalid ccd geometry")
)

// CCD describes the acquisition camera.
type CCD struct {
	Width      uint16
	Height     uint16
	PixelScale float64 // arcseconds per pixel
}

// Tables holds every instrument capability table.
type Tables struct {
	Filters   []string
	Apertures []string
	EHTVolts  uint16
	CCD       CCD
}

// Default returns the tables used when no file is configured.
func Default() Tables {
	return Tables{
		Filters:   []string{"clear"},
		Apertures: []string{"open"},
		EHTVolts:  1200,
		CCD:       CCD{Width: 512, Height: 512, PixelScale: 0.5},
	}
}

type fileTables struct {
	Filters   []string `toml:"filters"`
	Apertures []string `toml:"apertures"`
	EHTVolts  uint16   `toml:"eht_volts"`
	CCD       struct {
		Width      uint16  `toml:"width"`
		Height     uint16  `toml:"height"`
		PixelScale float64 `toml:"pixel_scale"`
	} `toml:"ccd"`
}

// Load reads capability tables from a TOML file over the defaults.
//
// Parameters:
//   - path: TOML file path
//
// Returns:
//   - Tables: Defaults overlaid with every key the file defines
//   - error: Decode or validation failure
func Load(path string) (Tables, error) {
	t := Default()

	var raw fileTables
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Tables{}, fmt.Errorf("load capability tables: %w", err)
	}

	if meta.IsDefined("filters") {
		t.Filters = normalizeSlots(raw.Filters)
	}
	if meta.IsDefined("apertures") {
		t.Apertures = normalizeSlots(raw.Apertures)
	}
	if meta.IsDefined("eht_volts") {
		t.EHTVolts = raw.EHTVolts
	}
	if meta.IsDefined("ccd", "width") {
		t.CCD.Width = raw.CCD.Width
	}
	if meta.IsDefined("ccd", "height") {
		t.CCD.Height = raw.CCD.Height
	}
	if meta.IsDefined("ccd", "pixel_scale") {
		t.CCD.PixelScale = raw.CCD.PixelScale
	}

	if err := t.Validate(); err != nil {
		return Tables{}, err
	}
	return t, nil
}

// Validate checks the tables fit the wire format.
func (t Tables) Validate() error {
	for _, wheel := range []struct {
		name  string
		slots []string
	}{
		{"filters", t.Filters},
		{"apertures", t.Apertures},
	} {
		if len(wheel.slots) == 0 || len(wheel.slots) > protocol.MaxSlots {
			return fmt.Errorf("%w: %s has %d, want 1-%d", ErrTooManySlots, wheel.name, len(wheel.slots), protocol.MaxSlots)
		}
		for _, s := range wheel.slots {
			if len(s) > protocol.SlotNameSize {
				return fmt.Errorf("%w: %s %q longer than %d bytes", ErrSlotName, wheel.name, s, protocol.SlotNameSize)
			}
		}
	}
	if t.CCD.Width == 0 || t.CCD.Height == 0 || t.CCD.PixelScale <= 0 {
		return fmt.Errorf("%w: %dx%d at %v\"/px", ErrCCD, t.CCD.Width, t.CCD.Height, t.CCD.PixelScale)
	}
	return nil
}

// Pmt returns the photometer capabilities message payload.
func (t Tables) Pmt() *protocol.PmtCapabilities {
	return &protocol.PmtCapabilities{
		Filters:   append([]string(nil), t.Filters...),
		Apertures: append([]string(nil), t.Apertures...),
		EHTVolts:  t.EHTVolts,
	}
}

// Ccd returns the acquisition camera capabilities message payload.
func (t Tables) Ccd() *protocol.CcdCapabilities {
	return &protocol.CcdCapabilities{
		Width:      t.CCD.Width,
		Height:     t.CCD.Height,
		PixelScale: t.CCD.PixelScale,
	}
}

func normalizeSlots(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		v := strings.TrimSpace(s)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
