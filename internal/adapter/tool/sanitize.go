package tool

import "boardpilot/internal/domain"

// Model-supplied values are corrected into range rather than rejected; a
// slightly-off tool call should still land on the canvas.

// clampCoord bounds a coordinate to the canvas coordinate range.
func clampCoord(v float64) float64 {
	if v > domain.MaxCoordinate {
		return domain.MaxCoordinate
	}
	if v < -domain.MaxCoordinate {
		return -domain.MaxCoordinate
	}
	return v
}

// clampSize bounds a dimension to the allowed object size range, substituting
// def when the value is missing or non-positive.
func clampSize(v, def float64) float64 {
	if v <= 0 {
		v = def
	}
	if v < domain.MinObjectSize {
		return domain.MinObjectSize
	}
	if v > domain.MaxObjectSize {
		return domain.MaxObjectSize
	}
	return v
}

// sanitizeText cuts text at the length cap, on a rune boundary.
func sanitizeText(s string) string {
	runes := []rune(s)
	if len(runes) <= domain.MaxTextLength {
		return s
	}
	return string(runes[:domain.MaxTextLength])
}
