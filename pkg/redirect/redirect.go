// Package redirect picks a conversion target by weight.
package redirect

import (
	"errors"
	"math/rand"

	"github.com/alim08/landing/pkg/models"
)

// ErrNoLinks is returned when no link has a positive weight.
var ErrNoLinks = errors.New("no conversion links available")

// Pick chooses one link with probability proportional to its weight.
// Links with a weight of zero or less are never chosen.
func Pick(links []models.ConversionLink, rnd *rand.Rand) (models.ConversionLink, error) {
	var total float64
	for _, l := range links {
		if l.Weight > 0 {
			total += l.Weight
		}
	}
	if total <= 0 {
		return models.ConversionLink{}, ErrNoLinks
	}

	target := rnd.Float64() * total
	var last models.ConversionLink
	for _, l := range links {
		if l.Weight <= 0 {
			continue
		}
		last = l
		target -= l.Weight
		if target < 0 {
			return l, nil
		}
	}
	// Float rounding can leave target at ~0 after the final link.
	return last, nil
}
