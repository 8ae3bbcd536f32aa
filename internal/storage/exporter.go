// Package storage persists pipeline results: exported artifacts on disk or
// S3, and a result store keyed by run id and fingerprint.
package storage

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ignite/churn-radar/internal/domain"
	"github.com/ignite/churn-radar/internal/pipeline"
	"github.com/ignite/churn-radar/internal/pkg/logger"
)

// Manifest indexes an export.
type Manifest struct {
	RunID        string         `json:"run_id"`
	Fingerprint  string         `json:"fingerprint"`
	GeneratedAt  time.Time      `json:"generated_at"`
	Cohorts      []ManifestItem `json:"cohorts"`
	Customers    int            `json:"customers"`
	MicroCohorts int            `json:"micro_cohorts"`
	Diagnostics  int            `json:"diagnostics"`
	ROIAvailable bool           `json:"roi_available"`
	Files        []string       `json:"files"`
}

// ManifestItem is one primary cohort line of the manifest.
type ManifestItem struct {
	Name string `json:"name"`
	Size int    `json:"size"`
	File string `json:"file"`
}

// Exporter writes run artifacts to a sink.
type Exporter struct {
	sink Sink
}

// NewExporter creates a new exporter
func NewExporter(sink Sink) *Exporter {
	return &Exporter{sink: sink}
}

// CohortFileName is the CSV artifact name of a primary cohort.
func CohortFileName(name string) string {
	return strings.ReplaceAll(name, " ", "_") + ".csv"
}

// CustomersFile is the per-customer artifact: every cleaned row with its
// derived columns, score and cohort assignments.
const CustomersFile = "customers.csv"

// Export writes cohorts.json, micro_cohorts.json, roi.json (only when ROI
// is available), one CSV per primary cohort, customers.csv and finally
// manifest.json.
func (e *Exporter) Export(ctx context.Context, res *pipeline.Result) (*Manifest, error) {
	m := &Manifest{
		RunID:        res.RunID,
		Fingerprint:  res.Fingerprint,
		GeneratedAt:  res.GeneratedAt,
		MicroCohorts: len(res.Micro),
		Customers:    len(res.Customers),
		Diagnostics:  len(res.Diagnostics),
		ROIAvailable: res.ROI != nil,
	}

	if err := e.putJSON(ctx, m, "cohorts.json", res.Primary); err != nil {
		return nil, err
	}
	if err := e.putJSON(ctx, m, "micro_cohorts.json", res.Micro); err != nil {
		return nil, err
	}
	if res.ROI != nil {
		if err := e.putJSON(ctx, m, "roi.json", res.ROI); err != nil {
			return nil, err
		}
	}

	byID := make(map[string]domain.CustomerRecord, len(res.Customers))
	for _, c := range res.Customers {
		byID[c.ID] = c
	}
	for _, cohort := range res.Primary {
		file := CohortFileName(cohort.Name)
		body, err := cohortCSV(cohort, byID)
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", file, err)
		}
		if err := e.sink.Put(ctx, file, body, "text/csv"); err != nil {
			return nil, fmt.Errorf("writing %s: %w", file, err)
		}
		m.Files = append(m.Files, file)
		m.Cohorts = append(m.Cohorts, ManifestItem{Name: cohort.Name, Size: cohort.Size, File: file})
	}

	body, err := customersCSV(res.Customers)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", CustomersFile, err)
	}
	if err := e.sink.Put(ctx, CustomersFile, body, "text/csv"); err != nil {
		return nil, fmt.Errorf("writing %s: %w", CustomersFile, err)
	}
	m.Files = append(m.Files, CustomersFile)

	m.Files = append(m.Files, "manifest.json")
	if err := e.putJSON(ctx, nil, "manifest.json", m); err != nil {
		return nil, err
	}

	logger.Info("export complete", "run_id", res.RunID, "location", e.sink.Location("manifest.json"), "files", len(m.Files))
	return m, nil
}

func (e *Exporter) putJSON(ctx context.Context, m *Manifest, key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", key, err)
	}
	if err := e.sink.Put(ctx, key, data, "application/json"); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	if m != nil {
		m.Files = append(m.Files, key)
	}
	return nil
}

var cohortCSVHeader = []string{"customer_id", "score", "monetary_value", "recency", "tenure", "micro_cohort"}

func cohortCSV(cohort domain.CohortStats, byID map[string]domain.CustomerRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(cohortCSVHeader); err != nil {
		return nil, err
	}
	for _, id := range cohort.Members {
		r := byID[id]
		row := []string{
			id,
			strconv.FormatFloat(r.Score, 'f', 6, 64),
			strconv.FormatFloat(r.MonetaryValue, 'f', -1, 64),
			strconv.FormatFloat(r.Recency, 'f', -1, 64),
			strconv.FormatFloat(r.Tenure, 'f', -1, 64),
			strconv.Itoa(r.MicroCohort),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

var customersCSVHeader = []string{
	"customer_id", "churned", "active", "tenure", "recency",
	"monetary_value", "engagement", "satisfaction_adjusted", "status",
	"churn_risk", "value_score", "score", "primary_cohort", "micro_cohort",
}

// customersCSV leaves primary_cohort empty for unassigned customers;
// micro_cohort is -1 for customers outside the clustered population.
func customersCSV(customers []domain.CustomerRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(customersCSVHeader); err != nil {
		return nil, err
	}
	num := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	for _, r := range customers {
		row := []string{
			r.ID,
			strconv.FormatBool(r.Churned),
			strconv.FormatBool(r.Active),
			num(r.Tenure),
			num(r.Recency),
			num(r.MonetaryValue),
			num(r.Engagement),
			num(r.SatisfactionAdjusted),
			string(r.Status),
			num(r.ChurnRisk),
			num(r.ValueScore),
			strconv.FormatFloat(r.Score, 'f', 6, 64),
			string(r.PrimaryCohort),
			strconv.Itoa(r.MicroCohort),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
