package api

import (
	"fmt"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"

	"propertylens/internal/database"
)

type Handler struct {
	db     *database.Database
	logger *logrus.Logger
}

func NewHandler(db *database.Database, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	return &Handler{
		db:     db,
		logger: logger,
	}
}

// GetMapData serves the map viewport query: profiles with coordinates inside
// a bbox, as a GeoJSON FeatureCollection. Too many matches and it returns
// only the count so the client can prompt a zoom-in.
func (h *Handler) GetMapData(c *gin.Context) {
	bound, ok := parseBBox(c.Query("bbox"))
	if !ok {
		c.JSON(http.StatusOK, geojson.NewFeatureCollection())
		return
	}

	filters := database.MapFilters{}
	if v := c.Query("min_price"); v != "" {
		if price, err := strconv.Atoi(v); err == nil {
			filters.MinPrice = &price
		}
	}
	if v := c.Query("min_sqft"); v != "" {
		if sqft, err := strconv.ParseFloat(v, 64); err == nil {
			filters.MinSqFt = &sqft
		}
	}
	if v := c.Query("max_sqft"); v != "" {
		if sqft, err := strconv.ParseFloat(v, 64); err == nil {
			filters.MaxSqFt = &sqft
		}
	}
	if v := c.Query("after_date"); v != "" {
		if after, err := time.Parse("2006-01-02", v); err == nil {
			filters.AfterDate = &after
		}
	}

	profiles, total, err := h.db.ProfilesInBounds(bound, filters)
	if err != nil {
		h.logger.WithError(err).Error("Failed to query map data")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to query map data"})
		return
	}

	if total > database.MapResultLimit {
		c.JSON(http.StatusOK, gin.H{"too_many": true, "count": total})
		return
	}

	fc := geojson.NewFeatureCollection()
	for i := range profiles {
		p := &profiles[i]
		if p.Latitude == nil || p.Longitude == nil || p.Sale == nil {
			continue
		}

		feature := geojson.NewFeature(orb.Point{*p.Longitude, *p.Latitude})
		feature.Properties = geojson.Properties{
			"id":         p.ID,
			"address":    fmt.Sprintf("%s, %s", p.Sale.FullAddress, p.Sale.Postcode),
			"price_paid": p.Sale.PricePaid,
			"deed_date":  p.Sale.DeedDate.Format("2006-01-02"),
		}
		if p.EstimatedNumBedrooms != nil {
			feature.Properties["bedrooms"] = *p.EstimatedNumBedrooms
		}
		if p.PricePerSqFt != nil {
			feature.Properties["price_per_sq_ft"] = *p.PricePerSqFt
		}
		if p.PricePerSqMetre != nil {
			feature.Properties["price_per_sq_metre"] = *p.PricePerSqMetre
		}
		if p.EPCRecord != nil {
			if p.EPCRecord.TotalFloorArea != nil {
				feature.Properties["floor_area_sq_m"] = *p.EPCRecord.TotalFloorArea
				feature.Properties["floor_area_sq_ft"] = math.Round(*p.EPCRecord.TotalFloorArea * 10.7639)
			}
			if p.EPCRecord.NumberHabitableRooms != nil {
				feature.Properties["habitable_rooms"] = *p.EPCRecord.NumberHabitableRooms
			}
		}
		fc.Append(feature)
	}

	c.JSON(http.StatusOK, fc)
}

// GetStats returns row counts for the three stores.
func (h *Handler) GetStats(c *gin.Context) {
	sales, err := h.db.CountSales()
	if err != nil {
		h.logger.WithError(err).Error("Failed to count sales")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get stats"})
		return
	}
	epcs, err := h.db.CountEPCRecords()
	if err != nil {
		h.logger.WithError(err).Error("Failed to count EPC records")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get stats"})
		return
	}
	profiles, err := h.db.CountProfiles()
	if err != nil {
		h.logger.WithError(err).Error("Failed to count profiles")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get stats"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sales":       sales,
		"epc_records": epcs,
		"profiles":    profiles,
	})
}

// parseBBox parses "swLng,swLat,neLng,neLat" into a bound.
func parseBBox(raw string) (orb.Bound, bool) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return orb.Bound{}, false
	}

	coords := make([]float64, 4)
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return orb.Bound{}, false
		}
		coords[i] = v
	}

	return orb.Bound{
		Min: orb.Point{coords[0], coords[1]},
		Max: orb.Point{coords[2], coords[3]},
	}, true
}
