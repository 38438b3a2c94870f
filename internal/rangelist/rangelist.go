// Package rangelist tracks the lines a global command still has to visit.
//
// The list holds disjoint, non-adjacent line ranges. Insert and Delete keep
// every range pointing at the same logical lines while the file changes
// underneath the command.
package rangelist

// Range is an inclusive span of line numbers. Start > Stop means exhausted.
type Range struct {
	Start int
	Stop  int
}

func (r Range) empty() bool { return r.Start > r.Stop }

// Tracker is an ordered list of ranges.
type Tracker struct {
	ranges      []Range
	lastChanged int
}

// New builds a tracker from ascending line numbers, coalescing runs.
func New(lines ...int) *Tracker {
	t := &Tracker{}
	for _, lno := range lines {
		t.Add(lno)
	}
	return t
}

// Add appends lno. Lines must be added in ascending order; a line adjacent
// to or inside the last range extends it.
func (t *Tracker) Add(lno int) {
	if n := len(t.ranges); n > 0 {
		last := &t.ranges[n-1]
		if lno <= last.Stop+1 {
			if lno > last.Stop {
				last.Stop = lno
			}
			return
		}
	}
	t.ranges = append(t.ranges, Range{Start: lno, Stop: lno})
}

// Insert records that a line was inserted at lno.
func (t *Tracker) Insert(lno int) {
	t.lastChanged = lno
	for i := 0; i < len(t.ranges); i++ {
		r := &t.ranges[i]
		switch {
		case r.Stop < lno:
		case r.Start >= lno:
			r.Start++
			r.Stop++
		default:
			// lno falls inside the range: the new line is not part of it.
			tail := Range{Start: lno + 1, Stop: r.Stop + 1}
			r.Stop = lno - 1
			t.ranges = append(t.ranges, Range{})
			copy(t.ranges[i+2:], t.ranges[i+1:])
			t.ranges[i+1] = tail
			i++
		}
	}
}

// Delete records that line lno was deleted.
func (t *Tracker) Delete(lno int) {
	t.lastChanged = lno
	for i := 0; i < len(t.ranges); i++ {
		r := &t.ranges[i]
		switch {
		case r.Stop < lno:
		case r.Start > lno:
			r.Start--
			r.Stop--
		default:
			r.Stop--
			if r.empty() {
				t.ranges = append(t.ranges[:i], t.ranges[i+1:]...)
				i--
			}
		}
	}
}

// Next returns the lowest line not yet visited and consumes it.
func (t *Tracker) Next() (int, bool) {
	for len(t.ranges) > 0 {
		r := &t.ranges[0]
		if r.empty() {
			t.ranges = t.ranges[1:]
			continue
		}
		lno := r.Start
		r.Start++
		return lno, true
	}
	return 0, false
}

// Ranges returns a copy of the live ranges.
func (t *Tracker) Ranges() []Range {
	out := make([]Range, 0, len(t.ranges))
	for _, r := range t.ranges {
		if !r.empty() {
			out = append(out, r)
		}
	}
	return out
}

// Len returns the number of lines left to visit.
func (t *Tracker) Len() int {
	n := 0
	for _, r := range t.ranges {
		if !r.empty() {
			n += r.Stop - r.Start + 1
		}
	}
	return n
}

// LastChanged returns the line of the most recent insert or delete, 0 if none.
func (t *Tracker) LastChanged() int {
	return t.lastChanged
}
