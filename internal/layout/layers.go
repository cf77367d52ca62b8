package layout

// Segment is a placed piece of an event: its cell range in one week row and
// the vertical slot it occupies there.
type Segment struct {
	EventID string `json:"eventId"`
	Row     int    `json:"row"`
	Col     int    `json:"col"`
	Span    int    `json:"span"`
	Layer   int    `json:"layer"`

	ContinuesBefore bool `json:"continuesBefore,omitempty"`
	ContinuesAfter  bool `json:"continuesAfter,omitempty"`
}

// End returns the column just past the segment.
func (s Segment) End() int { return s.Col + s.Span }

// Overlaps reports whether s and o share a column. Row is not considered.
func (s Segment) Overlaps(o Segment) bool {
	return s.Col < o.End() && o.Col < s.End()
}

// occupancy records which column ranges are taken per (row, layer).
type occupancy map[int]map[int][]Segment

func (o occupancy) free(s Segment, layer int) bool {
	for _, placed := range o[s.Row][layer] {
		if placed.Overlaps(s) {
			return false
		}
	}
	return true
}

func (o occupancy) put(s Segment) {
	if o[s.Row] == nil {
		o[s.Row] = make(map[int][]Segment)
	}
	o[s.Row][s.Layer] = append(o[s.Row][s.Layer], s)
}

// AssignLayers gives every segment the lowest layer in its row that no
// earlier, column-overlapping segment of the same row already holds.
// Segments are placed in slice order, so the caller controls the result
// through ordering. Rows are independent: two segments of the same event in
// different rows may end up on different layers.
func AssignLayers(segs []Segment) []Segment {
	out := make([]Segment, len(segs))
	occ := occupancy{}
	for i, s := range segs {
		s.Layer = 0
		for !occ.free(s, s.Layer) {
			s.Layer++
		}
		occ.put(s)
		out[i] = s
	}
	return out
}

// AssignEventLayers is the stricter variant of AssignLayers: all segments of
// one event share a layer, the lowest one that is free in every row the event
// touches. groups holds the segments of each event, in placement order.
func AssignEventLayers(groups [][]Segment) []Segment {
	var out []Segment
	occ := occupancy{}
	for _, group := range groups {
		layer := 0
		for !groupFree(occ, group, layer) {
			layer++
		}
		for _, s := range group {
			s.Layer = layer
			occ.put(s)
			out = append(out, s)
		}
	}
	return out
}

func groupFree(occ occupancy, group []Segment, layer int) bool {
	for _, s := range group {
		if !occ.free(s, layer) {
			return false
		}
	}
	return true
}

// RowDepths returns, per row, the number of layers in use (max layer + 1).
func RowDepths(segs []Segment, rows int) []int {
	depth := make([]int, rows)
	for _, s := range segs {
		if s.Row >= 0 && s.Row < rows && s.Layer+1 > depth[s.Row] {
			depth[s.Row] = s.Layer + 1
		}
	}
	return depth
}
