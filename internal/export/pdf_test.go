package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/medireport/platform/internal/report"
	"github.com/medireport/platform/internal/storage"
)

var fixedNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func lipidResult() *storage.TestResult {
	raw := "model output"
	return &storage.TestResult{
		ID:        1,
		PatientID: "P-001",
		TestType:  "lipid",
		Parameters: report.Parameters{
			"Total Cholesterol": "250",
			"HDL Cholesterol":   "45",
		},
		AIReport: &report.StructuredReport{
			Summary: "Elevated cholesterol",
			KeyFindings: []report.KeyFinding{
				{Parameter: "Total Cholesterol", Value: "250 mg/dL", ReferenceRange: "<200 mg/dL", Status: report.StatusAbnormal, Interpretation: "High"},
			},
			Recommendations: []string{"Diet review", "Repeat in 3 months"},
			TreatmentOptions: &report.TreatmentOptions{
				Lifestyle:   []string{"Exercise 150 min/week"},
				Medications: []string{"Statins"},
			},
			OverallAssessment: "Needs follow-up",
			FollowUpRequired:  true,
			CriticalFlags:     []string{"LDL above 190 μg/dL"},
			RawResponse:       &raw,
		},
		CreatedAt: fixedNow.Add(-time.Hour),
	}
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, lipidResult(), fixedNow); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF")) {
		t.Errorf("Expected PDF header, got %q", buf.Bytes()[:8])
	}
	if !bytes.Contains(buf.Bytes(), []byte("%%EOF")) {
		t.Error("Expected PDF trailer")
	}
}

func TestRenderPending(t *testing.T) {
	tr := &storage.TestResult{
		PatientID:  "P-002",
		TestType:   "blood",
		Parameters: report.Parameters{"White Blood Cells": "7.2"},
		CreatedAt:  fixedNow,
	}

	var buf bytes.Buffer
	if err := Render(&buf, tr, fixedNow); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "%PDF") {
		t.Error("Expected PDF output for a pending result")
	}
}

func TestRenderManyFindingsPaginates(t *testing.T) {
	tr := lipidResult()
	for i := 0; i < 40; i++ {
		tr.AIReport.KeyFindings = append(tr.AIReport.KeyFindings, report.KeyFinding{
			Parameter:      "Triglycerides",
			Value:          "140",
			ReferenceRange: "<150 mg/dL",
			Status:         report.StatusNormal,
			Interpretation: strings.Repeat("Within expected range. ", 10),
		})
	}

	var buf bytes.Buffer
	if err := Render(&buf, tr, fixedNow); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("/Count ")) {
		t.Error("Expected a page tree in output")
	}
}

func TestFilename(t *testing.T) {
	tests := []struct {
		testType string
		expected string
	}{
		{"lipid", "MediReport_P-001_Lipid_Profile_2025-03-14.pdf"},
		{"urine", "MediReport_P-001_Urine_Analysis_2025-03-14.pdf"},
		{"cardiac", "MediReport_P-001_cardiac_2025-03-14.pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.testType, func(t *testing.T) {
			tr := &storage.TestResult{PatientID: "P-001", TestType: tt.testType}
			if got := Filename(tr, fixedNow); got != tt.expected {
				t.Errorf("Expected '%s', got '%s'", tt.expected, got)
			}
		})
	}
}

func TestFindingFor(t *testing.T) {
	findings := []report.KeyFinding{
		{Parameter: "Non-HDL Cholesterol", Status: report.StatusBorderline},
		{Parameter: "HDL Cholesterol", Status: report.StatusNormal},
	}

	f := findingFor(findings, "hdl cholesterol")
	if f == nil || f.Parameter != "Non-HDL Cholesterol" {
		t.Errorf("Expected first containing match, got %+v", f)
	}
	if findingFor(findings, "Glucose") != nil {
		t.Error("Expected no match for Glucose")
	}
}
