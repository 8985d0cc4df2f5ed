package gumolog

// Severity mirrors the Cloud Logging severity scale.
type Severity int

const (
	SeverityDebug    Severity = 100
	SeverityInfo     Severity = 200
	SeverityWarning  Severity = 400
	SeverityError    Severity = 500
	SeverityCritical Severity = 600
)

// Name returns the severity name Cloud Logging expects.
func (s Severity) Name() string {
	switch {
	case s >= SeverityCritical:
		return "CRITICAL"
	case s >= SeverityError:
		return "ERROR"
	case s >= SeverityWarning:
		return "WARNING"
	case s >= SeverityInfo:
		return "INFO"
	}
	return "DEBUG"
}
