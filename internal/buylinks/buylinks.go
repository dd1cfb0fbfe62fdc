// Package buylinks builds store search links for a track. The stores
// have no lookup APIs on free tiers, so the links point at each store's
// search page with the track preloaded.
package buylinks

import (
	"fmt"
	"net/url"
	"strings"

	"trendpanel/internal/models"
)

type store struct {
	platform string
	template string
}

// Electronic-music stores first; they are where DJ buyers actually go.
var stores = []store{
	{"beatport", "https://www.beatport.com/search?q=%s"},
	{"traxsource", "https://www.traxsource.com/search?term=%s"},
	{"bandcamp", "https://bandcamp.com/search?q=%s"},
	{"juno", "https://www.junodownload.com/search/?q%%5Ball%%5D%%5B%%5D=%s"},
}

// ForTrack returns one search link per store for the given artist and
// title. Empty inputs yield no links.
func ForTrack(artist, title string) []models.BuyLink {
	query := strings.TrimSpace(artist + " " + title)
	if query == "" {
		return nil
	}
	escaped := url.QueryEscape(query)

	links := make([]models.BuyLink, 0, len(stores))
	for _, s := range stores {
		links = append(links, models.BuyLink{
			Platform: s.platform,
			URL:      fmt.Sprintf(s.template, escaped),
		})
	}
	return links
}
