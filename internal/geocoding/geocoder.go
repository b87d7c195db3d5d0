package geocoding

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"
)

// Geocoder resolves UK postcodes to coordinates via postcodes.io, with an
// on-disk cache so re-runs of the pipeline don't repeat lookups.
type Geocoder struct {
	logger    *logrus.Logger
	baseURL   string
	cacheDir  string
	cache     map[string][]float64
	cacheLock sync.RWMutex
	client    *http.Client
}

func NewGeocoder(logger *logrus.Logger, baseURL, cacheDir string) *Geocoder {
	os.MkdirAll(cacheDir, 0755)

	g := &Geocoder{
		logger:   logger,
		baseURL:  baseURL,
		cacheDir: cacheDir,
		cache:    make(map[string][]float64),
		client:   &http.Client{Timeout: 10 * time.Second},
	}

	g.loadCache()

	return g
}

func (g *Geocoder) loadCache() {
	cacheFile := filepath.Join(g.cacheDir, "geocode_cache.json")
	data, err := os.ReadFile(cacheFile)
	if err != nil {
		g.logger.Warnf("Could not load geocode cache: %v", err)
		return
	}

	err = json.Unmarshal(data, &g.cache)
	if err != nil {
		g.logger.Errorf("Failed to parse geocode cache: %v", err)
		return
	}

	g.logger.Infof("Loaded %d cached postcodes", len(g.cache))
}

func (g *Geocoder) saveCache() {
	g.cacheLock.RLock()
	defer g.cacheLock.RUnlock()

	cacheFile := filepath.Join(g.cacheDir, "geocode_cache.json")
	data, err := json.Marshal(g.cache)
	if err != nil {
		g.logger.Errorf("Failed to marshal geocode cache: %v", err)
		return
	}

	err = os.WriteFile(cacheFile, data, 0644)
	if err != nil {
		g.logger.Errorf("Failed to save geocode cache: %v", err)
		return
	}
}

type postcodeResponse struct {
	Status int `json:"status"`
	Result struct {
		Longitude float64 `json:"longitude"`
		Latitude  float64 `json:"latitude"`
	} `json:"result"`
}

// LookupPostcode returns the (longitude, latitude) point for a postcode.
// Any transport or service failure is returned as an error; callers treat
// it as "no location available".
func (g *Geocoder) LookupPostcode(postcode string) (orb.Point, error) {
	key := normalizeKey(postcode)

	g.cacheLock.RLock()
	if coords, ok := g.cache[key]; ok {
		g.cacheLock.RUnlock()
		if len(coords) == 2 {
			return orb.Point{coords[0], coords[1]}, nil
		}
		return orb.Point{}, fmt.Errorf("invalid cached coordinates for %s", postcode)
	}
	g.cacheLock.RUnlock()

	url := fmt.Sprintf("%s/postcodes/%s", g.baseURL, key)
	resp, err := g.client.Get(url)
	if err != nil {
		g.logger.WithError(err).WithField("postcode", postcode).Warn("Geocoding request failed")
		return orb.Point{}, fmt.Errorf("geocoding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		g.logger.WithFields(logrus.Fields{
			"postcode": postcode,
			"status":   resp.StatusCode,
		}).Warn("Postcode lookup returned non-200")
		return orb.Point{}, fmt.Errorf("postcode lookup returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return orb.Point{}, fmt.Errorf("failed to read response: %w", err)
	}

	var result postcodeResponse
	if err := json.Unmarshal(body, &result); err != nil {
		g.logger.WithError(err).WithField("postcode", postcode).Warn("Failed to parse geocoding response")
		return orb.Point{}, fmt.Errorf("failed to parse response: %w", err)
	}

	point := orb.Point{result.Result.Longitude, result.Result.Latitude}

	g.logger.WithFields(logrus.Fields{
		"postcode":  postcode,
		"longitude": point[0],
		"latitude":  point[1],
	}).Debug("Geocoded postcode")

	g.cacheLock.Lock()
	g.cache[key] = []float64{point[0], point[1]}
	g.cacheLock.Unlock()

	go g.saveCache()

	return point, nil
}

func normalizeKey(postcode string) string {
	out := make([]byte, 0, len(postcode))
	for i := 0; i < len(postcode); i++ {
		if postcode[i] != ' ' {
			out = append(out, postcode[i])
		}
	}
	return string(out)
}
