// Package render turns layout output into positions on a page.
//
// Columns may have different widths (weekend columns are usually narrower),
// so horizontal positions are percentages derived from per-column weights.
// Vertical positions are pixels: a fixed header per cell followed by one bar
// slot per layer.
package render

import (
	"fmt"

	"evcal/internal/layout"
)

// DefaultWeekendWeight is the relative width of Saturday and Sunday columns.
const DefaultWeekendWeight = 0.6

// Geometry describes the page's grid metrics.
type Geometry struct {
	// Weights holds one relative width per column, Monday first.
	Weights [layout.DaysPerWeek]float64

	HeaderPx int // space above the first bar in each cell (day number)
	BarPx    int // bar height
	GapPx    int // vertical gap between bars
	MinRowPx int // minimum row height
}

// DefaultGeometry uses equal weekdays and compressed weekends.
func DefaultGeometry(weekendWeight float64) Geometry {
	if weekendWeight <= 0 || weekendWeight > 1 {
		weekendWeight = DefaultWeekendWeight
	}
	return Geometry{
		Weights:  [layout.DaysPerWeek]float64{1, 1, 1, 1, 1, weekendWeight, weekendWeight},
		HeaderPx: 24,
		BarPx:    20,
		GapPx:    2,
		MinRowPx: 110,
	}
}

func (g Geometry) total() float64 {
	var sum float64
	for _, w := range g.Weights {
		sum += w
	}
	return sum
}

// ColumnLeft returns the left edge of column col as a percentage of the row.
func (g Geometry) ColumnLeft(col int) float64 {
	var sum float64
	for i := 0; i < col && i < len(g.Weights); i++ {
		sum += g.Weights[i]
	}
	return sum / g.total() * 100
}

// ColumnsWidth returns the width of span columns starting at col, as a
// percentage of the row.
func (g Geometry) ColumnsWidth(col, span int) float64 {
	var sum float64
	for i := col; i < col+span && i < len(g.Weights); i++ {
		sum += g.Weights[i]
	}
	return sum / g.total() * 100
}

// LayerTop returns the top offset in pixels of a bar on layer within a cell.
func (g Geometry) LayerTop(layer int) int {
	return g.HeaderPx + layer*(g.BarPx+g.GapPx)
}

// RowHeight returns the height of a row holding depth layers.
func (g Geometry) RowHeight(depth int) int {
	h := g.LayerTop(depth) + g.GapPx
	if h < g.MinRowPx {
		return g.MinRowPx
	}
	return h
}

// Box is the page position of one segment.
type Box struct {
	LeftPct  float64
	WidthPct float64
	TopPx    int
	HeightPx int
}

// Place positions s within its row.
func (g Geometry) Place(s layout.Segment) Box {
	return Box{
		LeftPct:  g.ColumnLeft(s.Col),
		WidthPct: g.ColumnsWidth(s.Col, s.Span),
		TopPx:    g.LayerTop(s.Layer),
		HeightPx: g.BarPx,
	}
}

// Style renders b as an inline CSS declaration list.
func (b Box) Style() string {
	return fmt.Sprintf("left:%.4f%%;width:%.4f%%;top:%dpx;height:%dpx", b.LeftPct, b.WidthPct, b.TopPx, b.HeightPx)
}

// GridTemplate returns a CSS grid-template-columns value for the weights.
func (g Geometry) GridTemplate() string {
	out := ""
	for i, w := range g.Weights {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%.3gfr", w)
	}
	return out
}
