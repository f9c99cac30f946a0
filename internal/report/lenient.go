package report

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// decodeLenient decodes a model reply object field by field. A field of the
// wrong JSON type is coerced instead of rejecting the whole report:
// scalars become text, a single string where a list is expected becomes a
// one-element list, and "yes"/"true"/1 count as true.
func decodeLenient(data []byte) (*StructuredReport, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}

	return &StructuredReport{
		Summary:           looseString(fields["summary"]),
		KeyFindings:       looseFindings(fields["keyFindings"]),
		Recommendations:   looseStrings(fields["recommendations"]),
		TreatmentOptions:  looseTreatment(fields["treatmentOptions"]),
		OverallAssessment: looseString(fields["overallAssessment"]),
		FollowUpRequired:  looseBool(fields["followUpRequired"]),
		CriticalFlags:     looseStrings(fields["criticalFlags"]),
	}, nil
}

func looseString(raw json.RawMessage) string {
	s, _ := looseText(raw)
	return s
}

func looseStrings(raw json.RawMessage) []string {
	data := bytes.TrimSpace(raw)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	if data[0] != '[' {
		s := looseString(data)
		if strings.TrimSpace(s) == "" {
			return []string{}
		}
		return []string{s}
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, looseString(item))
	}
	return out
}

func looseBool(raw json.RawMessage) bool {
	data := bytes.TrimSpace(raw)
	if len(data) == 0 {
		return false
	}
	switch data[0] {
	case 't':
		return bytes.Equal(data, []byte("true"))
	case '"':
		switch strings.ToLower(strings.TrimSpace(looseString(data))) {
		case "true", "yes", "y", "1":
			return true
		}
		return false
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		f, err := strconv.ParseFloat(string(data), 64)
		return err == nil && f != 0
	}
	return false
}

func looseFindings(raw json.RawMessage) []KeyFinding {
	data := bytes.TrimSpace(raw)
	if len(data) == 0 {
		return nil
	}

	switch data[0] {
	case '{':
		if f, ok := looseFinding(data); ok {
			return []KeyFinding{f}
		}
		return nil
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return nil
		}
		out := make([]KeyFinding, 0, len(items))
		for _, item := range items {
			if f, ok := looseFinding(item); ok {
				out = append(out, f)
			}
		}
		return out
	}
	return nil
}

// looseFinding decodes one keyFindings entry; entries that are not objects
// are dropped
func looseFinding(raw json.RawMessage) (KeyFinding, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return KeyFinding{}, false
	}
	return KeyFinding{
		Parameter:      looseString(fields["parameter"]),
		Value:          Text(looseString(fields["value"])),
		ReferenceRange: looseString(fields["referenceRange"]),
		Status:         FindingStatus(looseString(fields["status"])),
		Interpretation: looseString(fields["interpretation"]),
	}, true
}

func looseTreatment(raw json.RawMessage) *TreatmentOptions {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil
	}
	return &TreatmentOptions{
		Lifestyle:   looseStrings(fields["lifestyle"]),
		Medical:     looseStrings(fields["medical"]),
		Medications: looseStrings(fields["medications"]),
	}
}
