package consistency

import (
	"strings"

	"github.com/dmitrijs2005/resumepress/internal/server/models"
)

// FilterContent applies the profile's privacy flags to resume content,
// returning the render-ready shape. The filter runs at snapshot construction
// time: a cached snapshot never contains anything the flags disallow, so a
// cache that misses an invalidation can serve stale data but never private
// data it was allowed to hold.
func FilterContent(content models.ResumeContent, profile *models.Profile) models.ResumeContent {
	if !profile.ShowPhone {
		content.Phone = ""
	}
	if !profile.ShowAddress {
		content.Address = Region(content.Address)
	}
	return content
}

// Region reduces a full address to its coarsest component. The extraction is
// deterministic and lossy: the same address always yields the same region,
// and the street-level detail cannot be recovered from the output.
//
//	"12 Baker St, London, UK" -> "UK"
//	"Berlin"                  -> "Berlin"
func Region(address string) string {
	if address == "" {
		return ""
	}
	parts := strings.Split(address, ",")
	last := strings.TrimSpace(parts[len(parts)-1])
	if last == "" && len(parts) > 1 {
		// Trailing comma; fall back to the component before it.
		last = strings.TrimSpace(parts[len(parts)-2])
	}
	return last
}
