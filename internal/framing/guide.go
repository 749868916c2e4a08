// Package framing checks where a detected face sits relative to the on-screen
// oval guide and whether it has held still long enough to capture.
package framing

import "github.com/mbd888/facegate/internal/antispoof"

// Box is an axis-aligned rectangle. Any unit works as long as faces and the
// oval share it.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (b Box) CenterX() float64 { return b.X + b.Width/2 }
func (b Box) CenterY() float64 { return b.Y + b.Height/2 }

// Empty reports a box with no area.
func (b Box) Empty() bool { return b.Width <= 0 || b.Height <= 0 }

func (b Box) intersects(o Box) bool {
	return b.X < o.X+o.Width && o.X < b.X+b.Width &&
		b.Y < o.Y+o.Height && o.Y < b.Y+b.Height
}

// Placement is the outcome of a positioning check.
type Placement string

const (
	Centered    Placement = "centered"
	TooFar      Placement = "too_far"
	TooClose    Placement = "too_close"
	NotCentered Placement = "not_centered"
	OutOfBounds Placement = "out_of_bounds"
)

// DefaultOval is the guide oval in normalized frame coordinates.
var DefaultOval = Box{X: 0.2, Y: 0.15, Width: 0.6, Height: 0.7}

const (
	strictTolerance  = 1.0
	lenientTolerance = 1.2
)

// Guide holds the oval and the accepted face size range, as a fraction of
// the oval's width and height.
type Guide struct {
	Oval             Box     `json:"oval"`
	MinFaceSizeRatio float64 `json:"minFaceSizeRatio"`
	MaxFaceSizeRatio float64 `json:"maxFaceSizeRatio"`
	Strict           bool    `json:"strict"`
}

// GuideForScenario returns the positioning preset. Registration is the most
// forgiving; security checks demand a tight, centered face.
func GuideForScenario(s antispoof.Scenario) Guide {
	g := Guide{Oval: DefaultOval, MinFaceSizeRatio: 0.30, MaxFaceSizeRatio: 0.80, Strict: true}
	switch s {
	case antispoof.ScenarioRegistration:
		g.MinFaceSizeRatio, g.MaxFaceSizeRatio, g.Strict = 0.20, 0.90, false
	case antispoof.ScenarioUpdate:
		g.MinFaceSizeRatio, g.MaxFaceSizeRatio, g.Strict = 0.25, 0.85, false
	case antispoof.ScenarioSecurityCheck:
		g.MinFaceSizeRatio, g.MaxFaceSizeRatio = 0.35, 0.75
	}
	return g
}

// Check classifies face against the guide. Order matters: a face outside
// the oval is reported as such before its size is considered.
func (g Guide) Check(face Box) Placement {
	if face.Empty() || g.Oval.Empty() || !face.intersects(g.Oval) {
		return OutOfBounds
	}

	a, b := g.Oval.Width/2, g.Oval.Height/2
	dx := (face.CenterX() - g.Oval.CenterX()) / a
	dy := (face.CenterY() - g.Oval.CenterY()) / b
	tolerance := lenientTolerance
	if g.Strict {
		tolerance = strictTolerance
	}
	if dx*dx+dy*dy > tolerance {
		return NotCentered
	}

	wr, hr := face.Width/g.Oval.Width, face.Height/g.Oval.Height
	switch {
	case wr < g.MinFaceSizeRatio || hr < g.MinFaceSizeRatio:
		return TooFar
	case wr > g.MaxFaceSizeRatio || hr > g.MaxFaceSizeRatio:
		return TooClose
	}
	return Centered
}
