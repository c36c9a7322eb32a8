package source

// Builtin returns the descriptors used when no sources are configured.
func Builtin() []Descriptor {
	return []Descriptor{
		{
			Name:        "beasiswa.id",
			BaseURL:     "https://beasiswa.id",
			ListingPath: "/category/beasiswa/",
			Listing:     []string{"article.jeg_post", "article", ".post"},
			TitleLink:   []string{"h3.jeg_post_title a", ".jeg_post_title a", "h2.entry-title a", "h2 a"},
			Excerpt:     []string{".jeg_post_excerpt", ".entry-summary"},
			Time:        []string{"time[datetime]", ".jeg_meta_date"},
		},
		{
			Name:             "indbeasiswa.com",
			BaseURL:          "https://indbeasiswa.com",
			ListingPath:      "/beasiswa-s1/",
			Listing:          []string{".post-title a", "article, .post, .loop-post", "div.entry-card"},
			TitleLink:        []string{"h2.entry-title a", ".entry-title a", ".post-title a", "h2 a"},
			Content:          []string{".entry-content", ".single-content", ".post-content"},
			DefaultOrganizer: "Indbeasiswa.com",
			ExcerptLength:    400,
		},
		{
			Name:             "luarkampus.id",
			BaseURL:          "https://luarkampus.id",
			Listing:          []string{".elementor-post__title a", "article, .jeg_post"},
			TitleLink:        []string{".jeg_post_title a", "h3.jeg_post_title a", "h2.entry-title a"},
			Excerpt:          []string{".elementor-post__excerpt", ".jeg_post_excerpt"},
			HeadlessFallback: true,
		},
		{
			Name:        "scholarship4u.com",
			BaseURL:     "https://www.scholarship4u.com",
			ListingPath: "/category/scholarships/",
			Listing:     []string{"article, .post"},
			TitleLink:   []string{"h2.entry-title a", ".post-title a"},
			Excerpt:     []string{".entry-summary"},
			Time:        []string{"time[datetime]"},
			DateLabels:  []string{"Deadline", "Application deadline", "Closing date"},
		},
		{
			Name:      "daftarbeasiswa.com",
			BaseURL:   "https://www.daftarbeasiswa.com",
			Listing:   []string{"article, .post"},
			TitleLink: []string{"h2.entry-title a", "a"},
			Excerpt:   []string{".entry-summary", ".entry-content"},
		},
	}
}
