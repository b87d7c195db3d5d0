// Package profiler runs the batch pipeline that derives one PropertyProfile
// per physical property from the sale and EPC stores.
package profiler

import (
	"context"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"

	"propertylens/internal/database"
	"propertylens/internal/matching"
	"propertylens/internal/models"
)

// sqMetreToSqFt converts a floor area in square metres to square feet.
const sqMetreToSqFt = 10.7639

// Geocoder resolves a postcode to a (longitude, latitude) point. Failures
// are non-fatal to the pipeline.
type Geocoder interface {
	LookupPostcode(postcode string) (orb.Point, error)
}

// Builder orchestrates matching, metric computation, bedroom estimation and
// geocoding for every sale group, one group at a time.
type Builder struct {
	db       *database.Database
	matcher  *matching.Matcher
	geocoder Geocoder
	logger   *logrus.Logger
}

func NewBuilder(db *database.Database, matcher *matching.Matcher, geocoder Geocoder, logger *logrus.Logger) *Builder {
	return &Builder{
		db:       db,
		matcher:  matcher,
		geocoder: geocoder,
		logger:   logger,
	}
}

// Result reports what a pipeline run did.
type Result struct {
	// Profiles created or updated
	Created int

	// Groups skipped for expected reasons (no match, no floor area)
	Skipped int

	// Groups that failed with an unexpected error
	Errored int
}

// Run processes every distinct (postcode, paon, street) group in the sales
// data. A failure in one group is logged and counted but never aborts the
// batch; only an unreadable sale store fails the run. Cancellation takes
// effect between groups so no partial profile is written.
func (b *Builder) Run(ctx context.Context) (Result, error) {
	var result Result

	groups, err := b.db.SaleGroups()
	if err != nil {
		return result, fmt.Errorf("failed to load sale groups: %w", err)
	}

	b.logger.WithField("groups", len(groups)).Info("Starting profile run")

	for _, group := range groups {
		select {
		case <-ctx.Done():
			b.logger.WithFields(logrus.Fields{
				"created": result.Created,
				"skipped": result.Skipped,
				"errored": result.Errored,
			}).Warn("Profile run cancelled")
			return result, ctx.Err()
		default:
		}

		created, err := b.processGroup(group)
		switch {
		case err != nil:
			result.Errored++
			b.logger.WithError(err).WithFields(logrus.Fields{
				"postcode": group.Postcode,
				"paon":     group.PAON,
				"street":   group.Street,
			}).Warn("Error processing sale group")
		case created:
			result.Created++
		default:
			result.Skipped++
		}
	}

	b.logger.WithFields(logrus.Fields{
		"created": result.Created,
		"skipped": result.Skipped,
		"errored": result.Errored,
	}).Info("Profile run complete")

	return result, nil
}

// processGroup handles one sale group end to end. Returns (false, nil) for
// expected skips. Panics are converted to errors so one bad record cannot
// take down the batch.
func (b *Builder) processGroup(group database.SaleGroup) (created bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing group: %v", r)
		}
	}()

	sale, err := b.db.LatestSaleForGroup(group)
	if err != nil {
		return false, err
	}
	if sale == nil {
		return false, nil
	}

	candidates, err := b.db.EPCByPostcode(sale.Postcode)
	if err != nil {
		return false, err
	}

	best := b.matcher.BestMatch(sale, candidates)
	if best == nil {
		b.logger.WithFields(logrus.Fields{
			"sale_address": sale.FullAddress,
			"postcode":     sale.Postcode,
		}).Warn("No EPC match for sale group")
		return false, nil
	}

	// The matched address may have been inspected several times; use the
	// most recent certificate for it. Keyed by the EPC's own postcode since
	// its formatting can differ from the sale's.
	epc, err := b.db.LatestEPCForAddress(best.Postcode, best.FullAddress)
	if err != nil {
		return false, err
	}
	if epc == nil || epc.TotalFloorArea == nil || *epc.TotalFloorArea == 0 {
		b.logger.WithFields(logrus.Fields{
			"sale_address": sale.FullAddress,
			"postcode":     sale.Postcode,
		}).Warn("No usable EPC record: missing floor area")
		return false, nil
	}

	floorArea := *epc.TotalFloorArea
	price := float64(sale.PricePaid)

	pricePerSqMetre := round2(price / floorArea)
	pricePerSqFt := round2(price / (floorArea * sqMetreToSqFt))
	bedrooms := matching.EstimateBedrooms(epc)

	var latitude, longitude *float64
	if point, geoErr := b.geocoder.LookupPostcode(sale.Postcode); geoErr != nil {
		b.logger.WithError(geoErr).WithField("postcode", sale.Postcode).Warn("Failed to geocode postcode")
	} else {
		lng, lat := point[0], point[1]
		longitude, latitude = &lng, &lat
	}

	profile := &models.PropertyProfile{
		Postcode:             sale.Postcode,
		PAON:                 sale.PAON,
		Street:               sale.Street,
		EstimatedNumBedrooms: &bedrooms,
		PricePerSqMetre:      &pricePerSqMetre,
		PricePerSqFt:         &pricePerSqFt,
		SaleID:               &sale.UniqueID,
		EPCRecordID:          &epc.LMKKey,
		Latitude:             latitude,
		Longitude:            longitude,
	}

	if err := b.db.UpsertProfile(profile); err != nil {
		return false, err
	}
	return true, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
