// Package importer loads the two source datasets from their published CSV
// formats. Malformed rows are logged and skipped; an import never aborts on
// a single bad record.
package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"propertylens/internal/database"
	"propertylens/internal/models"
)

type Importer struct {
	db        *database.Database
	logger    *logrus.Logger
	batchSize int
}

func NewImporter(db *database.Database, logger *logrus.Logger, batchSize int) *Importer {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Importer{
		db:        db,
		logger:    logger,
		batchSize: batchSize,
	}
}

// ImportSales reads a Land Registry price-paid CSV and upserts sales by
// unique_id. Returns the number of rows imported.
func (im *Importer) ImportSales(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open sales CSV: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("failed to read sales CSV header: %w", err)
	}
	columns := indexColumns(header)

	var (
		batch    []models.Sale
		imported int
		line     = 1
	)
	for {
		line++
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			im.logger.WithError(err).WithField("line", line).Warn("Skipping malformed sales row")
			continue
		}

		sale, err := parseSaleRow(record, columns)
		if err != nil {
			im.logger.WithError(err).WithField("line", line).Warn("Skipping invalid sales row")
			continue
		}

		batch = append(batch, sale)
		if len(batch) >= im.batchSize {
			if err := im.db.UpsertSales(batch); err != nil {
				return imported, err
			}
			imported += len(batch)
			batch = batch[:0]
		}
	}

	if err := im.db.UpsertSales(batch); err != nil {
		return imported, err
	}
	imported += len(batch)

	im.logger.WithField("count", imported).Info("Imported Land Registry sales")
	return imported, nil
}

// ImportEPC reads an EPC certificates CSV and upserts records by LMK_KEY.
// Returns the number of rows imported.
func (im *Importer) ImportEPC(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open EPC CSV: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("failed to read EPC CSV header: %w", err)
	}
	columns := indexColumns(header)

	var (
		batch    []models.EPCRecord
		imported int
		line     = 1
	)
	for {
		line++
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			im.logger.WithError(err).WithField("line", line).Warn("Skipping malformed EPC row")
			continue
		}

		epc, err := parseEPCRow(record, columns)
		if err != nil {
			im.logger.WithError(err).WithField("line", line).Warn("Skipping invalid EPC row")
			continue
		}

		batch = append(batch, epc)
		if len(batch) >= im.batchSize {
			if err := im.db.UpsertEPCRecords(batch); err != nil {
				return imported, err
			}
			imported += len(batch)
			batch = batch[:0]
		}
	}

	if err := im.db.UpsertEPCRecords(batch); err != nil {
		return imported, err
	}
	imported += len(batch)

	im.logger.WithField("count", imported).Info("Imported EPC records")
	return imported, nil
}

func parseSaleRow(record []string, columns map[string]int) (models.Sale, error) {
	uniqueID := field(record, columns, "unique_id")
	if uniqueID == "" {
		return models.Sale{}, fmt.Errorf("missing unique_id")
	}

	price, err := strconv.Atoi(field(record, columns, "price_paid"))
	if err != nil {
		return models.Sale{}, fmt.Errorf("invalid price_paid: %w", err)
	}

	deedDate, err := parseDate(field(record, columns, "deed_date"), "2006-01-02", "2006-01-02 15:04")
	if err != nil {
		return models.Sale{}, fmt.Errorf("invalid deed_date: %w", err)
	}

	saon := strings.TrimSpace(field(record, columns, "saon"))
	paon := strings.TrimSpace(field(record, columns, "paon"))
	street := strings.TrimSpace(field(record, columns, "street"))

	return models.Sale{
		UniqueID:            uniqueID,
		PricePaid:           price,
		DeedDate:            deedDate,
		Postcode:            field(record, columns, "postcode"),
		PropertyType:        field(record, columns, "property_type"),
		NewBuild:            field(record, columns, "new_build"),
		EstateType:          field(record, columns, "estate_type"),
		TransactionCategory: field(record, columns, "transaction_category"),
		SAON:                saon,
		PAON:                paon,
		Street:              street,
		FullAddress:         JoinAddress(saon, paon, street),
		Locality:            field(record, columns, "locality"),
		Town:                field(record, columns, "town"),
		District:            field(record, columns, "district"),
		County:              field(record, columns, "county"),
	}, nil
}

func parseEPCRow(record []string, columns map[string]int) (models.EPCRecord, error) {
	lmkKey := field(record, columns, "LMK_KEY")
	if lmkKey == "" {
		return models.EPCRecord{}, fmt.Errorf("missing LMK_KEY")
	}

	return models.EPCRecord{
		LMKKey:               lmkKey,
		Address1:             field(record, columns, "ADDRESS1"),
		Address2:             field(record, columns, "ADDRESS2"),
		Address3:             field(record, columns, "ADDRESS3"),
		Postcode:             field(record, columns, "POSTCODE"),
		PropertyType:         field(record, columns, "PROPERTY_TYPE"),
		BuiltForm:            field(record, columns, "BUILT_FORM"),
		InspectionDate:       parseDateOrNil(field(record, columns, "INSPECTION_DATE"), "02/01/2006", "2006-01-02"),
		TotalFloorArea:       parseFloatOrNil(field(record, columns, "TOTAL_FLOOR_AREA")),
		NumberHabitableRooms: parseIntOrNil(field(record, columns, "NUMBER_HABITABLE_ROOMS")),
		NumberHeatedRooms:    parseIntOrNil(field(record, columns, "NUMBER_HEATED_ROOMS")),
		UPRN:                 field(record, columns, "UPRN"),
		FullAddress:          field(record, columns, "ADDRESS"),
	}, nil
}

// JoinAddress builds a sale's full_address from its parts, comma-joined with
// empty parts omitted.
func JoinAddress(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ", ")
}

func indexColumns(header []string) map[string]int {
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.TrimSpace(name)] = i
	}
	return columns
}

func field(record []string, columns map[string]int, name string) string {
	idx, ok := columns[name]
	if !ok || idx >= len(record) {
		return ""
	}
	return record[idx]
}

func parseDate(value string, layouts ...string) (time.Time, error) {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", value)
}

func parseDateOrNil(value string, layouts ...string) *time.Time {
	t, err := parseDate(value, layouts...)
	if err != nil {
		return nil
	}
	return &t
}

func parseFloatOrNil(value string) *float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return nil
	}
	return &f
}

func parseIntOrNil(value string) *int {
	i, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return nil
	}
	return &i
}
