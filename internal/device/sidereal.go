package device

import (
	"time"

	"github.com/nerrad567/dti-core/internal/astro"
	"github.com/nerrad567/dti-core/internal/protocol"
)

// siderealRate is sidereal hours per solar hour.
const siderealRate = 1.00273790935

// sidereal tracks local sidereal time. Time broadcasts from the scheduler
// take precedence; until the first one arrives it is computed from the clock.
type sidereal struct {
	longitude float64
	lst       float64
	at        time.Time
	have      bool
}

func (s *sidereal) observe(t *protocol.Time, now time.Time) {
	s.lst = astro.NormalizeHours(t.LST)
	s.at = now
	s.have = true
}

func (s *sidereal) now(now time.Time) float64 {
	if !s.have {
		return astro.LST(now, s.longitude)
	}
	return astro.NormalizeHours(s.lst + now.Sub(s.at).Hours()*siderealRate)
}

// apparent returns a target's right ascension in hours and declination in
// degrees with the adjustment offsets (arcseconds) applied.
func apparent(t *protocol.Target) (ra, dec float64) {
	ra = astro.NormalizeHours(t.RA.DecimalHours() + t.AdjRA/(15*3600))
	dec = t.Dec.DecimalDegrees() + t.AdjDec/3600
	return ra, dec
}
