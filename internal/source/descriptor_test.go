package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListingURL(t *testing.T) {
	t.Parallel()

	d := Descriptor{BaseURL: "https://www.scholarship4u.com/", ListingPath: "category/scholarships/"}
	got, err := d.ListingURL()
	require.NoError(t, err)
	assert.Equal(t, "https://www.scholarship4u.com/category/scholarships/", got)

	d = Descriptor{BaseURL: "https://luarkampus.id"}
	got, err = d.ListingURL()
	require.NoError(t, err)
	assert.Equal(t, "https://luarkampus.id", got)

	_, err = Descriptor{BaseURL: "luarkampus.id"}.ListingURL()
	assert.Error(t, err)
}

func TestDescriptorValidate(t *testing.T) {
	t.Parallel()

	valid := Descriptor{Name: "x", BaseURL: "https://x.test", Listing: []string{"article"}}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Descriptor)
		want   string
	}{
		{"missing name", func(d *Descriptor) { d.Name = " " }, "source name is required"},
		{"bad url", func(d *Descriptor) { d.BaseURL = "ftp://x" }, "base_url"},
		{"no listing", func(d *Descriptor) { d.Listing = []string{" "} }, "listing selector"},
		{"negative max", func(d *Descriptor) { d.MaxItems = -1 }, "max_items"},
		{"bad render", func(d *Descriptor) { d.Render = "js" }, "render"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			d := valid
			tc.mutate(&d)
			err := d.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestWithDefaults(t *testing.T) {
	t.Parallel()

	d := Descriptor{Name: "x"}.WithDefaults()
	assert.Equal(t, DefaultMaxItems, d.MaxItems)
	assert.Equal(t, DefaultExcerptLength, d.ExcerptLength)
	assert.Equal(t, DefaultContentSelectors, d.Content)
	assert.Equal(t, RenderStatic, d.Render)

	kept := Descriptor{Name: "x", MaxItems: 5, ExcerptLength: 400, Render: RenderHeadless}.WithDefaults()
	assert.Equal(t, 5, kept.MaxItems)
	assert.Equal(t, 400, kept.ExcerptLength)
	assert.Equal(t, RenderHeadless, kept.Render)
}

func TestBuiltinDescriptorsValidate(t *testing.T) {
	t.Parallel()

	seen := map[string]bool{}
	for _, d := range Builtin() {
		require.NoError(t, d.WithDefaults().Validate(), d.Name)
		require.False(t, seen[d.Name], "duplicate source %s", d.Name)
		seen[d.Name] = true
	}
	assert.Len(t, seen, 5)
}

func TestPromoFilter(t *testing.T) {
	t.Parallel()

	f := NewPromoFilter(DefaultPromo())
	tests := []struct {
		title, link string
		blocked     bool
	}{
		{"DAFTAR SEKARANG", "https://beasiswa.id/daftar", true},
		{" daftar sekarang ", "https://beasiswa.id/daftar", true},
		{"Info", "https://kirimwa.id/xyz", true},
		{"Info", "https://api.whatsapp.com/send?phone=1", true},
		{"Info", "https://wa.me/628123", true},
		{"Grup", "https://example.com/?ref=WhatsApp", true},
		{"Beasiswa Unggulan", "https://beasiswa.id/unggulan", false},
		{"Beasiswa Telkom", "https://notwa.me/x", false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.blocked, f.Blocked(tc.title, tc.link), "%s %s", tc.title, tc.link)
	}

	var nilFilter *PromoFilter
	assert.False(t, nilFilter.Blocked("DAFTAR SEKARANG", "https://kirimwa.id"))
}
