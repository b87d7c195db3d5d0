package importer

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propertylens/internal/database"
	"propertylens/internal/models"
)

func newTestImporter(t *testing.T) (*Importer, *database.Database) {
	t.Helper()
	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return NewImporter(db, logger, 2), db
}

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const salesHeader = "unique_id,price_paid,deed_date,postcode,property_type,new_build,estate_type,saon,paon,street,locality,town,district,county,transaction_category\n"

func TestImportSales(t *testing.T) {
	im, db := newTestImporter(t)

	path := writeCSV(t, salesHeader+
		"LR-1,500000,2023-01-01,SW1A 1AA,D,N,F,,10,Downing Street,,London,Westminster,Greater London,A\n"+
		"LR-2,250000,2022-06-15,LS1 1AA,T,N,F,Flat 2,5,Briggate,,Leeds,Leeds,West Yorkshire,A\n")

	count, err := im.ImportSales(path)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	var sale models.Sale
	require.NoError(t, db.GetDB().First(&sale, "unique_id = ?", "LR-1").Error)
	assert.Equal(t, 500000, sale.PricePaid)
	assert.Equal(t, "10, Downing Street", sale.FullAddress)

	var sale2 models.Sale
	require.NoError(t, db.GetDB().First(&sale2, "unique_id = ?", "LR-2").Error)
	assert.Equal(t, "Flat 2, 5, Briggate", sale2.FullAddress)
}

func TestImportSalesSkipsMalformedRows(t *testing.T) {
	im, db := newTestImporter(t)

	path := writeCSV(t, salesHeader+
		"LR-1,not-a-price,2023-01-01,SW1A 1AA,D,N,F,,10,Downing Street,,London,Westminster,Greater London,A\n"+
		"LR-2,250000,never,LS1 1AA,T,N,F,,5,Briggate,,Leeds,Leeds,West Yorkshire,A\n"+
		",250000,2022-06-15,LS1 1AA,T,N,F,,5,Briggate,,Leeds,Leeds,West Yorkshire,A\n"+
		"LR-4,300000,2022-06-15,LS1 1AA,T,N,F,,7,Briggate,,Leeds,Leeds,West Yorkshire,A\n")

	count, err := im.ImportSales(path)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	total, err := db.CountSales()
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
}

func TestImportSalesUpsertsByUniqueID(t *testing.T) {
	im, db := newTestImporter(t)

	first := writeCSV(t, salesHeader+
		"LR-1,500000,2023-01-01,SW1A 1AA,D,N,F,,10,Downing Street,,London,Westminster,Greater London,A\n")
	_, err := im.ImportSales(first)
	require.NoError(t, err)

	second := writeCSV(t, salesHeader+
		"LR-1,550000,2023-01-01,SW1A 1AA,D,N,F,,10,Downing Street,,London,Westminster,Greater London,A\n")
	_, err = im.ImportSales(second)
	require.NoError(t, err)

	total, err := db.CountSales()
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)

	var sale models.Sale
	require.NoError(t, db.GetDB().First(&sale, "unique_id = ?", "LR-1").Error)
	assert.Equal(t, 550000, sale.PricePaid)
}

const epcHeader = "LMK_KEY,ADDRESS1,ADDRESS2,ADDRESS3,POSTCODE,PROPERTY_TYPE,BUILT_FORM,INSPECTION_DATE,TOTAL_FLOOR_AREA,NUMBER_HABITABLE_ROOMS,NUMBER_HEATED_ROOMS,UPRN,ADDRESS\n"

func TestImportEPC(t *testing.T) {
	im, db := newTestImporter(t)

	path := writeCSV(t, epcHeader+
		"EPC-1,10 Downing Street,,,SW1A1AA,House,Detached,01/06/2022,100.5,6,5,100023336956,10 Downing Street\n"+
		"EPC-2,Flat 2 5 Briggate,,,LS11AA,Flat,,15/03/2019,,,,,Flat 2 5 Briggate\n")

	count, err := im.ImportEPC(path)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	var epc models.EPCRecord
	require.NoError(t, db.GetDB().First(&epc, "lmk_key = ?", "EPC-1").Error)
	require.NotNil(t, epc.TotalFloorArea)
	assert.InDelta(t, 100.5, *epc.TotalFloorArea, 1e-9)
	require.NotNil(t, epc.NumberHabitableRooms)
	assert.Equal(t, 6, *epc.NumberHabitableRooms)
	require.NotNil(t, epc.InspectionDate)
	assert.Equal(t, "2022-06-01", epc.InspectionDate.Format("2006-01-02"))

	// Blank numeric and date fields become nil, not zero
	var epc2 models.EPCRecord
	require.NoError(t, db.GetDB().First(&epc2, "lmk_key = ?", "EPC-2").Error)
	assert.Nil(t, epc2.TotalFloorArea)
	assert.Nil(t, epc2.NumberHabitableRooms)
}

func TestImportEPCSkipsRowsWithoutKey(t *testing.T) {
	im, db := newTestImporter(t)

	path := writeCSV(t, epcHeader+
		",10 Downing Street,,,SW1A1AA,House,Detached,01/06/2022,100.5,6,5,1,10 Downing Street\n"+
		"EPC-2,5 Briggate,,,LS11AA,Flat,,15/03/2019,55,3,3,2,5 Briggate\n")

	count, err := im.ImportEPC(path)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	total, err := db.CountEPCRecords()
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
}

func TestJoinAddress(t *testing.T) {
	assert.Equal(t, "Flat 2, 5, Briggate", JoinAddress("Flat 2", "5", "Briggate"))
	assert.Equal(t, "10, Downing Street", JoinAddress("", "10", "Downing Street"))
	assert.Equal(t, "", JoinAddress("", "", ""))
}
