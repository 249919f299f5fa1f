package graph

import "fmt"

// ---------------------------------------------------------------------------
// Layout validation (errors + warnings)
// ---------------------------------------------------------------------------

// ValidateLayout checks node rectangles. A rectangle without area is an
// error; two nodes covering each other is a warning.
func ValidateLayout(v *View) []ValidationError {
	var errs []ValidationError
	errs = append(errs, validateNonEmptyRects(v)...)
	errs = append(errs, validateOverlaps(v)...)
	return errs
}

// validateNonEmptyRects checks that every node has positive width and height.
func validateNonEmptyRects(v *View) []ValidationError {
	var errs []ValidationError

	for _, n := range v.nodes {
		if n.rect.Width <= 0 {
			errs = append(errs, ValidationError{
				NodeID:   n.id,
				Message:  fmt.Sprintf("width is %d, must be positive", n.rect.Width),
				Severity: SeverityError,
			})
		}
		if n.rect.Height <= 0 {
			errs = append(errs, ValidationError{
				NodeID:   n.id,
				Message:  fmt.Sprintf("height is %d, must be positive", n.rect.Height),
				Severity: SeverityError,
			})
		}
	}

	return errs
}

// validateOverlaps reports each pair of nodes whose rectangles intersect.
// Touching edges do not count.
func validateOverlaps(v *View) []ValidationError {
	var warnings []ValidationError

	for i, a := range v.nodes {
		for _, b := range v.nodes[i+1:] {
			if !a.rect.Overlaps(b.rect) {
				continue
			}
			warnings = append(warnings, ValidationError{
				NodeID:   b.id,
				Message:  fmt.Sprintf("overlaps node %d", a.id),
				Severity: SeverityWarning,
			})
		}
	}

	return warnings
}

// Overlaps reports whether r and o share any area.
func (r Rect) Overlaps(o Rect) bool {
	if r.Width <= 0 || r.Height <= 0 || o.Width <= 0 || o.Height <= 0 {
		return false
	}
	return r.X < o.X+o.Width && o.X < r.X+r.Width &&
		r.Y < o.Y+o.Height && o.Y < r.Y+r.Height
}
