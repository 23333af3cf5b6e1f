package sales

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadParsesRows(t *testing.T) {
	csv := strings.Join([]string{
		"receipt_id,barcode,product_name,quantity,unit_price,sold_at",
		"R1,049000000443,Cola 12oz,2,1.25,2026-08-30 14:03:00",
		"R1,,Potato Chips BBQ,1,2.49,",
		"R2,611269991000,Red Bull 8oz,3,\"2,79\",",
	}, "\n")

	rows, err := NewReader().Read(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "R1", rows[0].ReceiptID)
	assert.Equal(t, "049000000443", rows[0].Barcode)
	assert.Equal(t, 2.0, rows[0].Quantity)
	assert.Equal(t, 1.25, rows[0].UnitPrice)
	require.NotNil(t, rows[0].SoldAt)

	assert.Empty(t, rows[1].Barcode)
	assert.Equal(t, "Potato Chips BBQ", rows[1].ProductName)
	assert.Nil(t, rows[1].SoldAt)

	// Comma-decimal price from European POS exports.
	assert.Equal(t, 2.79, rows[2].UnitPrice)
}

func TestReadHandlesReorderedHeaders(t *testing.T) {
	csv := strings.Join([]string{
		"qty,item,price,receipt",
		"4,Bottled Water 500ml,0.99,R9",
	}, "\n")

	rows, err := NewReader().Read(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "R9", rows[0].ReceiptID)
	assert.Equal(t, "Bottled Water 500ml", rows[0].ProductName)
	assert.Equal(t, 4.0, rows[0].Quantity)
}

func TestReadSkipsBadRows(t *testing.T) {
	csv := strings.Join([]string{
		"receipt_id,product_name,quantity,unit_price",
		"R1,Cola 12oz,2,1.25",
		"R1,Ghost Item,-1,1.00",
		"R1,Typo Item,two,1.00",
		"R1,,3,1.00",
		"R2,Chips,1,2.49",
	}, "\n")

	rows, err := NewReader().Read(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Cola 12oz", rows[0].ProductName)
	assert.Equal(t, "Chips", rows[1].ProductName)
}

func TestReadRejectsMissingColumns(t *testing.T) {
	_, err := NewReader().Read(strings.NewReader("receipt_id,product_name\nR1,Cola"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quantity")
}

func TestReadRejectsEmptyInput(t *testing.T) {
	_, err := NewReader().Read(strings.NewReader(""))
	require.Error(t, err)
}
