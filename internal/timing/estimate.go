// Package timing estimates how long an enrichment attempt will take. The number is
// only shown as progress in clients.
package timing

import (
	"time"

	"stash/internal/platform"
)

const (
	classifyBase = 4 * time.Second
	perImage     = 600 * time.Millisecond
	perKiloChar  = 150 * time.Millisecond
	minEstimate  = 3 * time.Second
	maxEstimate  = 60 * time.Second
)

var scrapeCost = map[platform.Platform]time.Duration{
	platform.Instagram: 9 * time.Second,
	platform.Twitter:   3 * time.Second,
	platform.Reddit:    3 * time.Second,
	platform.TikTok:    4 * time.Second,
	platform.YouTube:   2 * time.Second,
	platform.Vimeo:     2 * time.Second,
	platform.Pinterest: 6 * time.Second,
	platform.Amazon:    7 * time.Second,
}

// Estimate returns the expected total processing time for a card.
func Estimate(p platform.Platform, contentLen, imageCount int, hasURL bool) time.Duration {
	total := classifyBase
	if hasURL {
		if d, ok := scrapeCost[p]; ok {
			total += d
		} else {
			total += 5 * time.Second
		}
	}
	if contentLen > 0 {
		total += time.Duration(contentLen/1000) * perKiloChar
	}
	if imageCount > 1 {
		total += time.Duration(imageCount-1) * perImage
	}
	if imageCount > 0 {
		total += perImage
	}
	if total < minEstimate {
		return minEstimate
	}
	if total > maxEstimate {
		return maxEstimate
	}
	return total
}
