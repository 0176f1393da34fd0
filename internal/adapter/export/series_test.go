package export

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/metevents/internal/domain"
)

const sampleCSV = `datetime,precip,flag
2023-01-01,0.0,A
2023-01-02,0.3,A
2023-01-03,,M
2023-01-04,NaN,M
2023-01-05,1.25,A
`

func TestReadSeries(t *testing.T) {
	s, err := ReadSeries(strings.NewReader(sampleCSV), "datetime", "precip")
	require.NoError(t, err)

	assert.Equal(t, "precip", s.Name)
	require.Equal(t, 5, s.Len())
	assert.Equal(t, time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC), s.Times[4])
	assert.InDelta(t, 0.3, s.Values[1], 1e-9)
	assert.True(t, math.IsNaN(s.Values[2]))
	assert.True(t, math.IsNaN(s.Values[3]))
	assert.InDelta(t, 1.25, s.Values[4], 1e-9)
}

func TestReadSeries_TimeLayouts(t *testing.T) {
	in := "t,v\n2023-01-01T00:00:00Z,1\n2023-01-01 01:00:00,2\n2023-01-01 02:00,3\n"
	s, err := ReadSeries(strings.NewReader(in), "t", "v")
	require.NoError(t, err)
	require.Equal(t, 3, s.Len())
	assert.Equal(t, time.Date(2023, 1, 1, 2, 0, 0, 0, time.UTC), s.Times[2])
}

func TestReadSeries_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{"missing time column", "when,precip\n2023-01-01,1\n", `time column "datetime"`},
		{"missing value column", "datetime,rain\n2023-01-01,1\n", `value column "precip"`},
		{"bad time", "datetime,precip\nsoon,1\n", "line 2: unrecognized time"},
		{"bad value", "datetime,precip\n2023-01-01,lots\n", `line 2: invalid value "lots"`},
		{"infinite value", "datetime,precip\n2023-01-01,+Inf\n", `line 2: invalid value "+Inf"`},
		{"negative infinity", "datetime,precip\n2023-01-01,-inf\n", `line 2: invalid value "-inf"`},
		{"unsorted", "datetime,precip\n2023-01-02,1\n2023-01-01,1\n", "strictly increasing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadSeries(strings.NewReader(tt.input), "datetime", "precip")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestReadSeries_Empty(t *testing.T) {
	_, err := ReadSeries(strings.NewReader(""), "datetime", "precip")
	require.ErrorIs(t, err, domain.ErrEmptySeries)

	_, err = ReadSeries(strings.NewReader("datetime,precip\n"), "datetime", "precip")
	require.ErrorIs(t, err, domain.ErrEmptySeries)
}

func TestReadSeriesCSV_Plain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "precip.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o600))

	s, err := ReadSeriesCSV(path, "datetime", "precip")
	require.NoError(t, err)
	assert.Equal(t, 5, s.Len())
}

func TestReadSeriesCSV_Gzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "precip.csv.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(sampleCSV))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	s, err := ReadSeriesCSV(path, "datetime", "precip")
	require.NoError(t, err)
	assert.Equal(t, 5, s.Len())
	assert.InDelta(t, 1.25, s.Values[4], 1e-9)
}

func TestReadSeriesCSV_MissingFile(t *testing.T) {
	_, err := ReadSeriesCSV(filepath.Join(t.TempDir(), "nope.csv"), "datetime", "precip")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open series file")
}

func TestWriteSeriesCSV_RoundTrip(t *testing.T) {
	for _, name := range []string{"out.csv", "out.csv.gz"} {
		t.Run(name, func(t *testing.T) {
			want, err := ReadSeries(strings.NewReader(sampleCSV), "datetime", "precip")
			require.NoError(t, err)

			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, WriteSeriesCSV(path, "datetime", "precip", want))

			got, err := ReadSeriesCSV(path, "datetime", "precip")
			require.NoError(t, err)
			require.Equal(t, want.Len(), got.Len())
			for i := range want.Times {
				assert.True(t, want.Times[i].Equal(got.Times[i]))
				if math.IsNaN(want.Values[i]) {
					assert.True(t, math.IsNaN(got.Values[i]))
					continue
				}
				assert.InDelta(t, want.Values[i], got.Values[i], 1e-12)
			}
		})
	}
}
