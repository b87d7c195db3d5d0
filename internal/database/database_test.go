package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propertylens/internal/models"
)

func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())
	return db
}

func date(value string) time.Time {
	t, _ := time.Parse("2006-01-02", value)
	return t
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }
func strPtr(v string) *string     { return &v }

func TestSaleGroups(t *testing.T) {
	db := newTestDatabase(t)

	require.NoError(t, db.UpsertSales([]models.Sale{
		{UniqueID: "S1", Postcode: "AB1 2CD", PAON: "7", Street: "High Street", DeedDate: date("2020-01-01")},
		{UniqueID: "S2", Postcode: "AB1 2CD", PAON: "7", Street: "High Street", DeedDate: date("2023-01-01")},
		{UniqueID: "S3", Postcode: "AB1 2CD", PAON: "9", Street: "High Street", DeedDate: date("2021-01-01")},
	}))

	groups, err := db.SaleGroups()
	require.NoError(t, err)
	assert.Len(t, groups, 2)
}

func TestLatestSaleForGroup(t *testing.T) {
	db := newTestDatabase(t)

	require.NoError(t, db.UpsertSales([]models.Sale{
		{UniqueID: "S1", Postcode: "AB1 2CD", PAON: "7", Street: "High Street", DeedDate: date("2020-01-01"), PricePaid: 100000},
		{UniqueID: "S2", Postcode: "AB1 2CD", PAON: "7", Street: "High Street", DeedDate: date("2023-01-01"), PricePaid: 150000},
	}))

	sale, err := db.LatestSaleForGroup(SaleGroup{Postcode: "AB1 2CD", PAON: "7", Street: "High Street"})
	require.NoError(t, err)
	require.NotNil(t, sale)
	assert.Equal(t, "S2", sale.UniqueID)

	missing, err := db.LatestSaleForGroup(SaleGroup{Postcode: "ZZ9 9ZZ", PAON: "1", Street: "Nowhere"})
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestLatestEPCForAddressPrefersDated(t *testing.T) {
	db := newTestDatabase(t)

	dated := date("2022-06-01")
	older := date("2012-06-01")
	require.NoError(t, db.UpsertEPCRecords([]models.EPCRecord{
		{LMKKey: "E1", Postcode: "AB12CD", FullAddress: "7 High Street", InspectionDate: &older},
		{LMKKey: "E2", Postcode: "AB12CD", FullAddress: "7 High Street", InspectionDate: &dated},
		{LMKKey: "E3", Postcode: "AB12CD", FullAddress: "7 High Street"},
	}))

	epc, err := db.LatestEPCForAddress("AB12CD", "7 High Street")
	require.NoError(t, err)
	require.NotNil(t, epc)
	assert.Equal(t, "E2", epc.LMKKey)
}

func TestUpsertProfileIsIdempotentPerKey(t *testing.T) {
	db := newTestDatabase(t)

	first := &models.PropertyProfile{
		Postcode: "AB1 2CD", PAON: "7", Street: "High Street",
		EstimatedNumBedrooms: intPtr(3),
		PricePerSqMetre:      floatPtr(2500),
	}
	require.NoError(t, db.UpsertProfile(first))

	second := &models.PropertyProfile{
		Postcode: "AB1 2CD", PAON: "7", Street: "High Street",
		EstimatedNumBedrooms: intPtr(4),
		PricePerSqMetre:      floatPtr(3000),
	}
	require.NoError(t, db.UpsertProfile(second))

	count, err := db.CountProfiles()
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	var profile models.PropertyProfile
	require.NoError(t, db.GetDB().First(&profile).Error)
	require.NotNil(t, profile.EstimatedNumBedrooms)
	assert.Equal(t, 4, *profile.EstimatedNumBedrooms)
	assert.InDelta(t, 3000, *profile.PricePerSqMetre, 1e-9)
}

func TestProfileReferencesNullifiedOnSourceDelete(t *testing.T) {
	db := newTestDatabase(t)

	require.NoError(t, db.UpsertSales([]models.Sale{
		{UniqueID: "S1", Postcode: "AB1 2CD", PAON: "7", Street: "High Street", DeedDate: date("2023-01-01")},
	}))
	require.NoError(t, db.UpsertProfile(&models.PropertyProfile{
		Postcode: "AB1 2CD", PAON: "7", Street: "High Street",
		SaleID: strPtr("S1"),
	}))

	require.NoError(t, db.GetDB().Delete(&models.Sale{}, "unique_id = ?", "S1").Error)

	var profile models.PropertyProfile
	require.NoError(t, db.GetDB().First(&profile).Error)
	assert.Nil(t, profile.SaleID, "deleting the sale should clear the reference, not the profile")
}

func TestClearProfiles(t *testing.T) {
	db := newTestDatabase(t)

	require.NoError(t, db.UpsertProfile(&models.PropertyProfile{Postcode: "AB1 2CD", PAON: "7", Street: "High Street"}))
	require.NoError(t, db.UpsertProfile(&models.PropertyProfile{Postcode: "AB1 2CD", PAON: "9", Street: "High Street"}))

	deleted, err := db.ClearProfiles()
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	count, err := db.CountProfiles()
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)
}

func TestProfilesInBounds(t *testing.T) {
	db := newTestDatabase(t)

	require.NoError(t, db.UpsertSales([]models.Sale{
		{UniqueID: "S1", Postcode: "SW1A 1AA", PAON: "10", Street: "Downing Street", PricePaid: 500000, DeedDate: date("2023-01-01")},
		{UniqueID: "S2", Postcode: "LS1 1AA", PAON: "5", Street: "Briggate", PricePaid: 150000, DeedDate: date("2019-01-01")},
	}))

	lng, lat := -0.1277, 51.5034
	leedsLng, leedsLat := -1.5438, 53.7965
	require.NoError(t, db.UpsertProfile(&models.PropertyProfile{
		Postcode: "SW1A 1AA", PAON: "10", Street: "Downing Street",
		SaleID: strPtr("S1"), PricePerSqFt: floatPtr(464.52),
		Longitude: &lng, Latitude: &lat,
	}))
	require.NoError(t, db.UpsertProfile(&models.PropertyProfile{
		Postcode: "LS1 1AA", PAON: "5", Street: "Briggate",
		SaleID: strPtr("S2"), PricePerSqFt: floatPtr(120),
		Longitude: &leedsLng, Latitude: &leedsLat,
	}))
	// No coordinates: never appears on the map
	require.NoError(t, db.UpsertProfile(&models.PropertyProfile{
		Postcode: "M1 1AA", PAON: "1", Street: "Deansgate",
	}))

	london := orb.Bound{Min: orb.Point{-0.2, 51.4}, Max: orb.Point{0.0, 51.6}}
	profiles, total, err := db.ProfilesInBounds(london, MapFilters{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, profiles, 1)
	assert.Equal(t, "SW1A 1AA", profiles[0].Postcode)
	require.NotNil(t, profiles[0].Sale)
	assert.Equal(t, 500000, profiles[0].Sale.PricePaid)

	all := orb.Bound{Min: orb.Point{-3, 50}, Max: orb.Point{1, 55}}
	_, total, err = db.ProfilesInBounds(all, MapFilters{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)

	minPrice := 200000
	profiles, total, err = db.ProfilesInBounds(all, MapFilters{MinPrice: &minPrice})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, profiles, 1)
	assert.Equal(t, "SW1A 1AA", profiles[0].Postcode)

	minSqFt := 200.0
	_, total, err = db.ProfilesInBounds(all, MapFilters{MinSqFt: &minSqFt})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)

	after := date("2020-01-01")
	_, total, err = db.ProfilesInBounds(all, MapFilters{AfterDate: &after})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
}
