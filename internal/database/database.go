package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"propertylens/internal/models"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(dbPath string) (*Database, error) {
	// Foreign keys must be on for every pooled connection so SET NULL on
	// profile references works
	db, err := gorm.Open(sqlite.Open(dbPath+"?_fk=1"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Database{db: db}, nil
}

func (d *Database) RunMigrations() error {
	return d.db.AutoMigrate(
		&models.Sale{},
		&models.EPCRecord{},
		&models.PropertyProfile{},
	)
}

func (d *Database) GetDB() *gorm.DB {
	return d.db
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaleGroup identifies one physical property in the sales data.
type SaleGroup struct {
	Postcode string
	PAON     string `gorm:"column:paon"`
	Street   string
}

// SaleGroups returns the distinct (postcode, paon, street) keys present in
// the sales table.
func (d *Database) SaleGroups() ([]SaleGroup, error) {
	var groups []SaleGroup
	err := d.db.Model(&models.Sale{}).
		Distinct("postcode", "paon", "street").
		Scan(&groups).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query sale groups: %w", err)
	}
	return groups, nil
}

// LatestSaleForGroup returns the most recent sale for a group key, which the
// profiler treats as the authoritative transaction for that property.
func (d *Database) LatestSaleForGroup(group SaleGroup) (*models.Sale, error) {
	var sale models.Sale
	err := d.db.
		Where("postcode = ? AND paon = ? AND street = ?", group.Postcode, group.PAON, group.Street).
		Order("deed_date DESC").
		First(&sale).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sale for group: %w", err)
	}
	return &sale, nil
}

// EPCByPostcode returns the candidate pool for matching: every certificate
// sharing the sale's postcode.
func (d *Database) EPCByPostcode(postcode string) ([]models.EPCRecord, error) {
	var records []models.EPCRecord
	err := d.db.Where("postcode = ?", postcode).Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query EPC records: %w", err)
	}
	return records, nil
}

// LatestEPCForAddress returns the certificate with the most recent inspection
// date among duplicates of the same address. SQLite sorts NULL inspection
// dates last under DESC, so undated certificates only win when nothing else
// exists.
func (d *Database) LatestEPCForAddress(postcode, fullAddress string) (*models.EPCRecord, error) {
	var record models.EPCRecord
	err := d.db.
		Where("postcode = ? AND full_address = ?", postcode, fullAddress).
		Order("inspection_date DESC").
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch latest EPC record: %w", err)
	}
	return &record, nil
}

// UpsertSales inserts or replaces sales by unique_id in one transaction.
func (d *Database) UpsertSales(sales []models.Sale) error {
	if len(sales) == 0 {
		return nil
	}
	err := d.db.Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "unique_id"}},
			UpdateAll: true,
		}).Create(&sales).Error
	})
	if err != nil {
		return fmt.Errorf("failed to upsert sales batch: %w", err)
	}
	return nil
}

// UpsertEPCRecords inserts or replaces certificates by lmk_key in one transaction.
func (d *Database) UpsertEPCRecords(records []models.EPCRecord) error {
	if len(records) == 0 {
		return nil
	}
	err := d.db.Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "lmk_key"}},
			UpdateAll: true,
		}).Create(&records).Error
	})
	if err != nil {
		return fmt.Errorf("failed to upsert EPC batch: %w", err)
	}
	return nil
}

// UpsertProfile writes a profile keyed by (postcode, paon, street). Re-running
// the pipeline overwrites the computed fields for the same key instead of
// creating a second row.
func (d *Database) UpsertProfile(profile *models.PropertyProfile) error {
	err := d.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "postcode"}, {Name: "paon"}, {Name: "street"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"estimated_num_bedrooms",
			"price_per_sq_metre",
			"price_per_sq_ft",
			"sale_id",
			"epc_record_id",
			"latitude",
			"longitude",
		}),
	}).Create(profile).Error
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

// ClearProfiles deletes every profile row, forcing the next pipeline run to
// recompute from scratch. Returns the number of rows removed.
func (d *Database) ClearProfiles() (int64, error) {
	result := d.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.PropertyProfile{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to clear profiles: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (d *Database) CountProfiles() (int64, error) {
	var count int64
	err := d.db.Model(&models.PropertyProfile{}).Count(&count).Error
	return count, err
}

func (d *Database) CountSales() (int64, error) {
	var count int64
	err := d.db.Model(&models.Sale{}).Count(&count).Error
	return count, err
}

func (d *Database) CountEPCRecords() (int64, error) {
	var count int64
	err := d.db.Model(&models.EPCRecord{}).Count(&count).Error
	return count, err
}

// MapFilters narrows the map viewport query.
type MapFilters struct {
	MinPrice  *int
	MinSqFt   *float64
	MaxSqFt   *float64
	AfterDate *time.Time
}

// MaxMapFeatures caps how many points a single viewport response carries.
const MaxMapFeatures = 300

// MapResultLimit is the count past which the viewport query refuses to
// return features at all and asks the client to zoom in.
const MapResultLimit = 2000

func (d *Database) mapQuery(bound orb.Bound, filters MapFilters) *gorm.DB {
	q := d.db.Model(&models.PropertyProfile{}).
		Joins("Sale").
		Where("latitude IS NOT NULL AND longitude IS NOT NULL").
		Where("longitude BETWEEN ? AND ?", bound.Min[0], bound.Max[0]).
		Where("latitude BETWEEN ? AND ?", bound.Min[1], bound.Max[1])

	if filters.MinPrice != nil {
		q = q.Where("Sale.price_paid >= ?", *filters.MinPrice)
	}
	if filters.MinSqFt != nil {
		q = q.Where("price_per_sq_ft >= ?", *filters.MinSqFt)
	}
	if filters.MaxSqFt != nil {
		q = q.Where("price_per_sq_ft <= ?", *filters.MaxSqFt)
	}
	if filters.AfterDate != nil {
		q = q.Where("Sale.deed_date >= ?", *filters.AfterDate)
	}
	return q
}

// ProfilesInBounds returns the profiles inside a viewport, with their source
// rows loaded. When the total match count exceeds MapResultLimit no rows are
// returned; the caller reports the count instead.
func (d *Database) ProfilesInBounds(bound orb.Bound, filters MapFilters) ([]models.PropertyProfile, int64, error) {
	var total int64
	if err := d.mapQuery(bound, filters).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count profiles in bounds: %w", err)
	}
	if total > MapResultLimit {
		return nil, total, nil
	}

	var profiles []models.PropertyProfile
	err := d.mapQuery(bound, filters).
		Preload("EPCRecord").
		Limit(MaxMapFeatures).
		Find(&profiles).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query profiles in bounds: %w", err)
	}
	return profiles, total, nil
}
