package dataset

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

func TestParseFilename(t *testing.T) {
	tests := []struct {
		name       string
		file       string
		assessment Assessment
		org        string
		features   string
		wantErr    bool
	}{
		{name: "nasatlx", file: "cogbeacon_nasatlx_multimodal.csv", assessment: NASATLX, org: "cogbeacon", features: "multimodal"},
		{name: "tlx alias", file: "lab_tlx_raw.csv", assessment: NASATLX, org: "lab", features: "raw"},
		{name: "chalder alias", file: "clinic_chalder_self_report.csv", assessment: CFQ, org: "clinic", features: "self_report"},
		{name: "too few parts", file: "justtwo_parts.csv", wantErr: true},
		{name: "unknown assessment", file: "org_unknown_features.csv", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			org, assessment, features, err := ParseFilename(tc.file)
			if tc.wantErr {
				var vErr *ValidationError
				if !errors.As(err, &vErr) {
					t.Fatalf("want ValidationError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if org != tc.org || assessment != tc.assessment || features != tc.features {
				t.Fatalf("got (%s, %s, %s)", org, assessment, features)
			}
		})
	}
}

func TestLoadNASATLX(t *testing.T) {
	path := writeCSV(t, "cogbeacon_nasatlx_multimodal.csv",
		"participant_id,fatigue_score,mental_demand,physical_demand,temporal_demand,performance,effort,frustration\n"+
			"p1,40,60,30,50,70,80,20\n"+
			"p2,55,90,10,60,40,70,50\n")

	ds, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(ds.Records) != 2 {
		t.Fatalf("records = %d, want 2", len(ds.Records))
	}
	if ds.Assessment != NASATLX || ds.Organization != "cogbeacon" {
		t.Fatalf("metadata = %s/%s", ds.Organization, ds.Assessment)
	}

	rec := ds.Records[0]
	wantWorkload := (60.0 + 30 + 50 + 70 + 80 + 20) / 6
	if math.Abs(rec.Workload-wantWorkload) > 1e-9 {
		t.Fatalf("workload = %f, want %f", rec.Workload, wantWorkload)
	}
	if math.Abs(rec.CognitiveLoadIndex-(60.0+50+80)/3) > 1e-9 {
		t.Fatalf("cognitive load index = %f", rec.CognitiveLoadIndex)
	}
	if math.Abs(rec.PhysicalStrainIndex-(30.0+80)/2) > 1e-9 {
		t.Fatalf("physical strain index = %f", rec.PhysicalStrainIndex)
	}

	stats := ds.Stats()
	if stats.Samples != 2 || stats.Participants != 2 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.TargetMin != 40 || stats.TargetMax != 55 {
		t.Fatalf("target range = [%f, %f]", stats.TargetMin, stats.TargetMax)
	}
}

func TestLoadMissingColumns(t *testing.T) {
	path := writeCSV(t, "lab_nasatlx_partial.csv",
		"participant_id,fatigue_score,mental_demand,performance,effort,frustration\n"+
			"p1,40,60,70,80,20\n")

	_, err := Load(path)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("want ValidationError, got %v", err)
	}
	got := strings.Join(vErr.Columns, ",")
	if got != "physical_demand,temporal_demand" {
		t.Fatalf("columns = %s", got)
	}
}

func TestLoadRejectsOutOfRange(t *testing.T) {
	tests := []struct {
		name   string
		file   string
		csv    string
		column string
	}{
		{
			name: "nasatlx dimension over 100",
			file: "lab_nasatlx_raw.csv",
			csv: "participant_id,fatigue_score,mental_demand,physical_demand,temporal_demand,performance,effort,frustration\n" +
				"p1,40,160,30,50,70,80,20\n",
			column: "mental_demand",
		},
		{
			name: "negative fatigue score",
			file: "lab_nasatlx_raw.csv",
			csv: "participant_id,fatigue_score,mental_demand,physical_demand,temporal_demand,performance,effort,frustration\n" +
				"p1,-5,60,30,50,70,80,20\n",
			column: "fatigue_score",
		},
		{
			name: "cfq physical over scale",
			file: "clinic_cfq_report.csv",
			csv: "participant_id,fatigue_score,physical_fatigue,psychological_fatigue,total_score\n" +
				"p1,40,25,6,20\n",
			column: "physical_fatigue",
		},
		{
			name: "non-numeric value",
			file: "lab_nasatlx_raw.csv",
			csv: "participant_id,fatigue_score,mental_demand,physical_demand,temporal_demand,performance,effort,frustration\n" +
				"p1,40,high,30,50,70,80,20\n",
			column: "mental_demand",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeCSV(t, tc.file, tc.csv))
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("want ValidationError, got %v", err)
			}
			if len(vErr.Columns) != 1 || vErr.Columns[0] != tc.column {
				t.Fatalf("columns = %v, want [%s]", vErr.Columns, tc.column)
			}
		})
	}
}

func TestLoadCFQScaleDetection(t *testing.T) {
	tests := []struct {
		name    string
		rows    string
		bimodal bool
		want    float64 // cfq_normalized of the first row
	}{
		{
			name:    "bimodal",
			rows:    "p1,40,4,3,8\np2,60,6,4,11\n",
			bimodal: true,
			want:    8.0 / 11 * 100,
		},
		{
			name:    "likert",
			rows:    "p1,40,12,8,22\np2,60,15,10,30\n",
			bimodal: false,
			want:    22.0 / 33 * 100,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writeCSV(t, "clinic_cfq_report.csv",
				"participant_id,fatigue_score,physical_fatigue,psychological_fatigue,total_score\n"+tc.rows)
			ds, err := Load(path)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if ds.Bimodal != tc.bimodal {
				t.Fatalf("bimodal = %v, want %v", ds.Bimodal, tc.bimodal)
			}
			if got := ds.Records[0].CFQNormalized; math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("cfq_normalized = %f, want %f", got, tc.want)
			}
		})
	}
}

func TestLoadEmptyFile(t *testing.T) {
	path := writeCSV(t, "lab_nasatlx_raw.csv",
		"participant_id,fatigue_score,mental_demand,physical_demand,temporal_demand,performance,effort,frustration\n")

	_, err := Load(path)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("want ValidationError, got %v", err)
	}
}
