package generic

// =============================================================================
// PERIOD - Start/end date pair for internships
// =============================================================================

// Period is a closed date range [Start, End].
//
// Examples:
//   - Internship: 2025-01-01 .. 2025-06-30
//   - Warning window: today .. today+7
type Period struct {
	Start TimePoint
	End   TimePoint
}

// Validate requires End strictly after Start.
func (p Period) Validate() error {
	if p.Start.IsZero() || p.End.IsZero() {
		return InvalidRangef("start and end dates are required")
	}
	if !p.End.After(p.Start) {
		return InvalidRangef("end date %s must be after start date %s", p.End, p.Start)
	}
	return nil
}

// Contains returns true if the time point is within the period [Start, End].
func (p Period) Contains(t TimePoint) bool {
	return t.AfterOrEqual(p.Start) && t.BeforeOrEqual(p.End)
}

// WindowFrom returns the inclusive window [from, from+days].
func WindowFrom(from TimePoint, days int) Period {
	return Period{Start: from, End: from.AddDays(days)}
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}
