// Package dataset loads psychometric assessment CSVs and turns them into
// training examples for the batch trainer.
package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"vigil/pkg/vector"
)

// Assessment identifies the questionnaire a dataset was collected with.
type Assessment string

const (
	NASATLX Assessment = "nasatlx"
	CFQ     Assessment = "cfq"
)

var (
	baseColumns    = []string{"participant_id", "fatigue_score"}
	nasaTLXColumns = []string{
		"mental_demand", "physical_demand", "temporal_demand",
		"performance", "effort", "frustration",
	}
	cfqColumns = []string{"physical_fatigue", "psychological_fatigue", "total_score"}
)

// ValidationError reports a dataset that cannot be trained on. Columns names
// the offending header fields when the failure is column-related.
type ValidationError struct {
	File    string
	Columns []string
	Reason  string
}

func (e *ValidationError) Error() string {
	if len(e.Columns) > 0 {
		return fmt.Sprintf("dataset %s: %s: columns %s", e.File, e.Reason, strings.Join(e.Columns, ", "))
	}
	return fmt.Sprintf("dataset %s: %s", e.File, e.Reason)
}

// Record is one assessment row with its derived indices filled in.
type Record struct {
	ParticipantID string
	FatigueScore  float64

	MentalDemand   float64
	PhysicalDemand float64
	TemporalDemand float64
	Performance    float64
	Effort         float64
	Frustration    float64

	PhysicalFatigue      float64
	PsychologicalFatigue float64
	TotalScore           float64

	Workload               float64
	FrustrationEffortRatio float64
	CognitiveLoadIndex     float64
	PhysicalStrainIndex    float64
	CFQNormalized          float64
	FatigueRatio           float64
}

type Dataset struct {
	Organization string
	Assessment   Assessment
	Features     string
	Bimodal      bool // CFQ only: total_score on the 0-11 scale
	Records      []Record
}

// ParseFilename splits <organization>_<assessment>_<features> out of a
// dataset file name, e.g. cogbeacon_nasatlx_multimodal.csv.
func ParseFilename(name string) (organization string, assessment Assessment, features string, err error) {
	stem := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	parts := strings.Split(stem, "_")
	if len(parts) < 3 {
		return "", "", "", &ValidationError{
			File:   name,
			Reason: "invalid filename, expected <organization>_<assessment>_<features>",
		}
	}

	switch strings.ToLower(parts[1]) {
	case "nasatlx", "nasa-tlx", "tlx":
		assessment = NASATLX
	case "cfq", "chalder":
		assessment = CFQ
	default:
		return "", "", "", &ValidationError{
			File:   name,
			Reason: fmt.Sprintf("unknown assessment type %q, supported: nasatlx, cfq", parts[1]),
		}
	}

	return parts[0], assessment, strings.Join(parts[2:], "_"), nil
}

// Load reads and validates a dataset file. Any malformed row, missing column
// or out-of-range score fails the whole file.
func Load(path string) (*Dataset, error) {
	organization, assessment, features, err := ParseFilename(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, &ValidationError{File: path, Reason: fmt.Sprintf("read csv: %v", err)}
	}
	if len(rows) < 2 {
		return nil, &ValidationError{File: path, Reason: "no data rows"}
	}

	header := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		header[strings.TrimSpace(name)] = i
	}

	required := append([]string{}, baseColumns...)
	switch assessment {
	case NASATLX:
		required = append(required, nasaTLXColumns...)
	case CFQ:
		required = append(required, cfqColumns...)
	}
	var missing []string
	for _, col := range required {
		if _, ok := header[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &ValidationError{File: path, Columns: missing, Reason: "missing required columns"}
	}

	ds := &Dataset{
		Organization: organization,
		Assessment:   assessment,
		Features:     features,
		Records:      make([]Record, 0, len(rows)-1),
	}

	for n, row := range rows[1:] {
		rec, err := parseRecord(path, header, row, assessment, n+2)
		if err != nil {
			return nil, err
		}
		ds.Records = append(ds.Records, rec)
	}

	if assessment == CFQ {
		ds.Bimodal = maxColumn(ds.Records, func(r Record) float64 { return r.TotalScore }) <= 11
	}
	for i := range ds.Records {
		derive(&ds.Records[i], ds)
	}
	return ds, nil
}

func parseRecord(path string, header map[string]int, row []string, assessment Assessment, line int) (Record, error) {
	field := func(col string) (float64, error) {
		idx := header[col]
		if idx >= len(row) {
			return 0, &ValidationError{File: path, Columns: []string{col}, Reason: fmt.Sprintf("row %d is short", line)}
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(row[idx]), 64)
		if err != nil {
			return 0, &ValidationError{File: path, Columns: []string{col}, Reason: fmt.Sprintf("row %d: not a number", line)}
		}
		return v, nil
	}

	var rec Record
	if idx, ok := header["participant_id"]; ok && idx < len(row) {
		rec.ParticipantID = strings.TrimSpace(row[idx])
	}

	var err error
	if rec.FatigueScore, err = field("fatigue_score"); err != nil {
		return rec, err
	}
	if rec.FatigueScore < 0 || rec.FatigueScore > 100 {
		return rec, &ValidationError{File: path, Columns: []string{"fatigue_score"}, Reason: fmt.Sprintf("row %d: value outside 0-100", line)}
	}

	switch assessment {
	case NASATLX:
		dims := []struct {
			col string
			dst *float64
		}{
			{"mental_demand", &rec.MentalDemand},
			{"physical_demand", &rec.PhysicalDemand},
			{"temporal_demand", &rec.TemporalDemand},
			{"performance", &rec.Performance},
			{"effort", &rec.Effort},
			{"frustration", &rec.Frustration},
		}
		for _, d := range dims {
			if *d.dst, err = field(d.col); err != nil {
				return rec, err
			}
			if *d.dst < 0 || *d.dst > 100 {
				return rec, &ValidationError{File: path, Columns: []string{d.col}, Reason: fmt.Sprintf("row %d: value outside 0-100", line)}
			}
		}
	case CFQ:
		if rec.PhysicalFatigue, err = field("physical_fatigue"); err != nil {
			return rec, err
		}
		if rec.PsychologicalFatigue, err = field("psychological_fatigue"); err != nil {
			return rec, err
		}
		if rec.TotalScore, err = field("total_score"); err != nil {
			return rec, err
		}
		if rec.PhysicalFatigue < 0 || rec.PhysicalFatigue > 21 {
			return rec, &ValidationError{File: path, Columns: []string{"physical_fatigue"}, Reason: fmt.Sprintf("row %d: value outside 0-21", line)}
		}
		if rec.PsychologicalFatigue < 0 || rec.PsychologicalFatigue > 12 {
			return rec, &ValidationError{File: path, Columns: []string{"psychological_fatigue"}, Reason: fmt.Sprintf("row %d: value outside 0-12", line)}
		}
		if rec.TotalScore < 0 || rec.TotalScore > 33 {
			return rec, &ValidationError{File: path, Columns: []string{"total_score"}, Reason: fmt.Sprintf("row %d: value outside 0-33", line)}
		}
	}
	return rec, nil
}

const ratioEpsilon = 1e-6

func derive(rec *Record, ds *Dataset) {
	switch ds.Assessment {
	case NASATLX:
		rec.Workload = (rec.MentalDemand + rec.PhysicalDemand + rec.TemporalDemand +
			rec.Performance + rec.Effort + rec.Frustration) / 6
		rec.FrustrationEffortRatio = rec.Frustration / (rec.Effort + ratioEpsilon)
		rec.CognitiveLoadIndex = (rec.MentalDemand + rec.TemporalDemand + rec.Effort) / 3
		rec.PhysicalStrainIndex = (rec.PhysicalDemand + rec.Effort) / 2
	case CFQ:
		rec.FatigueRatio = rec.PhysicalFatigue / (rec.PsychologicalFatigue + ratioEpsilon)
		scale := 33.0
		if ds.Bimodal {
			scale = 11.0
		}
		rec.CFQNormalized = rec.TotalScore / scale * 100
	}
}

func maxColumn(records []Record, pick func(Record) float64) float64 {
	var max float64
	for i, r := range records {
		if v := pick(r); i == 0 || v > max {
			max = v
		}
	}
	return max
}

// Stats summarizes a loaded dataset.
type Stats struct {
	Samples      int     `json:"samples"`
	Participants int     `json:"participants"`
	TargetMean   float64 `json:"target_mean"`
	TargetStd    float64 `json:"target_std"`
	TargetMin    float64 `json:"target_min"`
	TargetMax    float64 `json:"target_max"`
}

func (d *Dataset) Stats() Stats {
	targets := make(vector.V, 0, len(d.Records))
	participants := make(map[string]struct{})
	for _, r := range d.Records {
		targets = append(targets, r.FatigueScore)
		participants[r.ParticipantID] = struct{}{}
	}

	s := Stats{Samples: len(d.Records), Participants: len(participants)}
	if len(targets) > 0 {
		s.TargetMean = targets.Mean()
		s.TargetStd = targets.Std()
		s.TargetMin = targets.Min()
		s.TargetMax = targets.Max()
	}
	return s
}
