package report

// Level is the derived risk classification of a test result
type Level string

const (
	RiskLow    Level = "low"
	RiskMedium Level = "medium"
	RiskHigh   Level = "high"
)

// thresholds for inferring risk from raw values when a report has no findings
type threshold struct {
	parameter string
	high      func(float64) bool
	medium    func(float64) bool
}

var rawThresholds = []threshold{
	{"Total Cholesterol", func(v float64) bool { return v > 240 }, func(v float64) bool { return v > 200 }},
	{"Glucose", func(v float64) bool { return v > 126 }, func(v float64) bool { return v > 100 }},
	{"Hemoglobin", func(v float64) bool { return v < 10 }, func(v float64) bool { return v < 12 }},
}

// RiskLevel classifies a test result. Key findings take precedence; raw
// parameter thresholds are only consulted when the report has none.
func RiskLevel(r *StructuredReport, params Parameters) Level {
	if r != nil && len(r.KeyFindings) > 0 {
		return FindingsRiskLevel(r.KeyFindings)
	}
	return ParametersRiskLevel(params)
}

// FindingsRiskLevel is high on any abnormal finding, medium on more than one
// borderline finding, low otherwise.
func FindingsRiskLevel(findings []KeyFinding) Level {
	borderline := 0
	for _, f := range findings {
		switch f.Status {
		case StatusAbnormal:
			return RiskHigh
		case StatusBorderline:
			borderline++
		}
	}
	if borderline > 1 {
		return RiskMedium
	}
	return RiskLow
}

// ParametersRiskLevel infers risk from cholesterol, glucose and hemoglobin
// values. Missing or non-numeric values are ignored.
func ParametersRiskLevel(params Parameters) Level {
	level := RiskLow
	for _, th := range rawThresholds {
		v, ok := params.Float(th.parameter)
		if !ok {
			continue
		}
		if th.high(v) {
			return RiskHigh
		}
		if th.medium(v) {
			level = RiskMedium
		}
	}
	return level
}
