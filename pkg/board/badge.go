package board

import (
	"encoding/base64"
	"fmt"
	"html"
	"sync"

	"departureboard/pkg/types"
)

var modeGlyphs = map[types.TransportType]string{
	types.TransportTrain: "J",
	types.TransportMetro: "T",
	types.TransportBus:   "B",
	types.TransportTram:  "L",
}

// BadgeGenerator renders base64-encoded SVG line badges. Results are memoised
// per mode and line.
type BadgeGenerator struct {
	mu    sync.Mutex
	cache map[string]string
}

func NewBadgeGenerator() *BadgeGenerator {
	return &BadgeGenerator{cache: make(map[string]string)}
}

// LineBadge draws the line number on the mode colour with the mode glyph in a
// white circle.
func (g *BadgeGenerator) LineBadge(t types.TransportType, line string) string {
	key := string(t) + "/" + line

	g.mu.Lock()
	defer g.mu.Unlock()
	if uri, ok := g.cache[key]; ok {
		return uri
	}

	color := LineColor(t)
	glyph, ok := modeGlyphs[t]
	if !ok {
		glyph = "?"
	}

	// Widen for three-character lines such as 540 or 13X
	width := 64
	if len(line) > 2 {
		width = 64 + (len(line)-2)*10
	}

	svg := fmt.Sprintf(`<svg width="%d" height="32" xmlns="http://www.w3.org/2000/svg">
  <rect width="%d" height="32" fill="%s" rx="6"/>
  <circle cx="16" cy="16" r="11" fill="white"/>
  <text x="16" y="21" font-family="Arial, sans-serif" font-size="14" font-weight="bold" fill="%s" text-anchor="middle">%s</text>
  <text x="%d" y="22" font-family="Arial, sans-serif" font-size="16" font-weight="bold" fill="white" text-anchor="middle">%s</text>
</svg>`, width, width, color, color, glyph, 32+(width-32)/2, html.EscapeString(line))

	uri := "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(svg))
	g.cache[key] = uri
	return uri
}
