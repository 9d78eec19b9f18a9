package models

// RiskOrdinal maps a risk_level string to its fixed ordinal:
// low=1, medium=2, high=3, critical=4. Unknown levels return 0 and a
// false ok so callers can skip them in conflict scans.
func RiskOrdinal(level string) (int, bool) {
	switch level {
	case "low":
		return 1, true
	case "medium":
		return 2, true
	case "high":
		return 3, true
	case "critical":
		return 4, true
	}
	return 0, false
}
