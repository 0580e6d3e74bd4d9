package common

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPagination_Validate(t *testing.T) {
	assert.NoError(t, Pagination{Page: 1, PageSize: 20}.Validate())
	assert.NoError(t, Pagination{Page: 10, PageSize: 500}.Validate())
	assert.Error(t, Pagination{Page: 0, PageSize: 20}.Validate())
	assert.Error(t, Pagination{Page: 1, PageSize: 0}.Validate())
	assert.Error(t, Pagination{Page: 1, PageSize: 501}.Validate())
}

func TestPagination_Offset(t *testing.T) {
	assert.Equal(t, 0, Pagination{Page: 1, PageSize: 20}.Offset())
	assert.Equal(t, 40, Pagination{Page: 3, PageSize: 20}.Offset())
}

func TestNewPaginationResult(t *testing.T) {
	res := NewPaginationResult(Pagination{Page: 2, PageSize: 25}, 101)
	assert.Equal(t, 2, res.Page)
	assert.Equal(t, 25, res.PageSize)
	assert.Equal(t, int64(101), res.Total)
	assert.Equal(t, 5, res.TotalPages)

	empty := NewPaginationResult(Pagination{Page: 1, PageSize: 20}, 0)
	assert.Equal(t, 0, empty.TotalPages)
}

func TestTimestamp_JSONRoundTrip(t *testing.T) {
	orig := Timestamp(time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC))

	data, err := json.Marshal(orig)
	require.NoError(t, err)

	var decoded Timestamp
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, time.Time(orig).Equal(time.Time(decoded)))
}

func TestTimestamp_UnmarshalAcceptsSecondPrecision(t *testing.T) {
	var ts Timestamp
	require.NoError(t, json.Unmarshal([]byte(`"2024-03-15T09:30:00Z"`), &ts))
	assert.Equal(t, 2024, time.Time(ts).Year())
}

func TestDateRange_Validate(t *testing.T) {
	now := time.Now().UTC()
	ok := DateRange{From: Timestamp(now.Add(-time.Hour)), To: Timestamp(now)}
	assert.NoError(t, ok.Validate())

	bad := DateRange{From: Timestamp(now), To: Timestamp(now.Add(-time.Hour))}
	assert.Error(t, bad.Validate())
}
