package models

import "time"

// Sale is one Land Registry price-paid transaction. Rows are written only by
// the importer; re-importing the same unique_id updates in place.
type Sale struct {
	UniqueID            string    `gorm:"primaryKey;size:64" json:"unique_id"`
	PricePaid           int       `json:"price_paid"`
	DeedDate            time.Time `json:"deed_date"`
	Postcode            string    `gorm:"size:10;index:idx_sales_group,priority:1" json:"postcode"`
	PropertyType        string    `gorm:"size:1" json:"property_type"`
	NewBuild            string    `gorm:"size:1" json:"new_build"`
	EstateType          string    `gorm:"size:1" json:"estate_type"`
	TransactionCategory string    `gorm:"size:1" json:"transaction_category"`
	SAON                string    `gorm:"column:saon;size:100" json:"saon"`
	PAON                string    `gorm:"column:paon;size:100;index:idx_sales_group,priority:2" json:"paon"`
	Street              string    `gorm:"size:255;index:idx_sales_group,priority:3" json:"street"`
	FullAddress         string    `gorm:"size:256;index" json:"full_address"`
	Locality            string    `gorm:"size:100" json:"locality"`
	Town                string    `gorm:"size:100" json:"town"`
	District            string    `gorm:"size:100" json:"district"`
	County              string    `gorm:"size:100" json:"county"`
}

// EPCRecord is one energy performance certificate. The same address appears
// multiple times across re-inspections; the profiler picks the latest.
type EPCRecord struct {
	LMKKey               string     `gorm:"column:lmk_key;primaryKey;size:100" json:"lmk_key"`
	Address1             string     `gorm:"size:255" json:"address1"`
	Address2             string     `gorm:"size:255" json:"address2"`
	Address3             string     `gorm:"size:255" json:"address3"`
	Postcode             string     `gorm:"size:10;index" json:"postcode"`
	PropertyType         string     `gorm:"size:50" json:"property_type"`
	BuiltForm            string     `gorm:"size:50" json:"built_form"`
	InspectionDate       *time.Time `json:"inspection_date"`
	TotalFloorArea       *float64   `json:"total_floor_area"`
	NumberHabitableRooms *int       `json:"number_habitable_rooms"`
	NumberHeatedRooms    *int       `json:"number_heated_rooms"`
	UPRN                 string     `gorm:"column:uprn;size:100;index" json:"uprn"`
	FullAddress          string     `json:"full_address"`
}

// PropertyProfile is the derived linkage between a sale and its best-matching
// EPC record. Keyed by (postcode, paon, street) rather than sale ID: the sale
// ID changes per transaction while the physical property does not. Source
// references are nulled, not cascaded, when the source row disappears.
type PropertyProfile struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Postcode string `gorm:"size:10;uniqueIndex:idx_profile_key,priority:1" json:"postcode"`
	PAON     string `gorm:"column:paon;size:100;uniqueIndex:idx_profile_key,priority:2" json:"paon"`
	Street   string `gorm:"size:255;uniqueIndex:idx_profile_key,priority:3" json:"street"`

	EstimatedNumBedrooms *int     `json:"estimated_num_bedrooms"`
	PricePerSqMetre      *float64 `json:"price_per_sq_metre"`
	PricePerSqFt         *float64 `json:"price_per_sq_ft"`

	SaleID *string `gorm:"size:64" json:"sale_id"`
	Sale   *Sale   `gorm:"foreignKey:SaleID;references:UniqueID;constraint:OnDelete:SET NULL" json:"sale,omitempty"`

	EPCRecordID *string    `gorm:"column:epc_record_id;size:100" json:"epc_record_id"`
	EPCRecord   *EPCRecord `gorm:"foreignKey:EPCRecordID;references:LMKKey;constraint:OnDelete:SET NULL" json:"epc_record,omitempty"`

	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func (EPCRecord) TableName() string {
	return "epc_records"
}
