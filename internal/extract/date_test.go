package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/scholarship-aggregator/internal/record"
)

func TestDateChain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   Input
		want string
	}{
		{
			name: "labeled indonesian month",
			in:   Input{Detail: "Informasi beasiswa\nDeadline: 12 Januari 2026"},
			want: "2026-01-12",
		},
		{
			name: "labeled english month",
			in:   Input{Detail: "deadline : 15 March 2026"},
			want: "2026-03-15",
		},
		{
			name: "labeled iso",
			in:   Input{Detail: "Pendaftaran hingga: 2026-02-28"},
			want: "2026-02-28",
		},
		{
			name: "labeled day first slash",
			in:   Input{Detail: "Batas waktu pendaftaran: 05/03/2026"},
			want: "2026-03-05",
		},
		{
			name: "label wins over time marker",
			in:   Input{Detail: "Deadline: 1 Mei 2026", TimeMarker: "2025-12-01"},
			want: "2026-05-01",
		},
		{
			name: "invalid labeled date falls through to time marker",
			in:   Input{Detail: "Deadline: 31 Februari 2026", TimeMarker: "2025-12-01T10:00:00+07:00"},
			want: "2025-12-01",
		},
		{
			name: "scanned month name",
			in:   Input{Title: "Beasiswa Unggulan", Detail: "Ditutup pada 3 Maret 2026."},
			want: "2026-03-03",
		},
		{
			name: "scanned iso",
			in:   Input{Excerpt: "Update 2026-04-10 untuk program magang"},
			want: "2026-04-10",
		},
		{
			name: "no date",
			in:   Input{Title: "Beasiswa S1", Detail: "Segera daftar"},
			want: record.Unknown,
		},
	}

	chain := NewDateChain(nil)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, chain.Resolve(tc.in))
		})
	}
}

func TestDateChainCustomLabels(t *testing.T) {
	t.Parallel()

	chain := NewDateChain([]string{"Closing date"})
	require.Equal(t, "2026-06-30", chain.Resolve(Input{Detail: "Closing date: 30 June 2026"}))
	// A default label is not recognised, but the generic scan still finds the date.
	require.Equal(t, "2026-06-01", chain.Resolve(Input{Detail: "Deadline: 1 June 2026"}))
}

func TestParseDate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"12 Januari 2026", "2026-01-12", true},
		{"1 agt 2025", "2025-08-01", true},
		{"9 Sept. 2025", "2025-09-09", true},
		{"2026-01-12", "2026-01-12", true},
		{"12/1/2026", "2026-01-12", true},
		{"31/02/2026", "", false},
		{"12 Smarch 2026", "", false},
		{"2026-13-01", "", false},
		{"", "", false},
	}
	for _, tc := range tests {
		got, ok := ParseDate(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		if tc.ok {
			assert.Equal(t, tc.want, got.Format(record.DateLayout), tc.in)
		}
	}
}

func TestTimeMarkerDate(t *testing.T) {
	t.Parallel()

	v, ok := TimeMarkerDate(Input{TimeMarker: "2024-05-01T10:00:00+07:00"})
	require.True(t, ok)
	assert.Equal(t, "2024-05-01", v)

	_, ok = TimeMarkerDate(Input{TimeMarker: "kemarin"})
	assert.False(t, ok)
}
