package datanorm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ignite/churn-radar/internal/config"
	"github.com/ignite/churn-radar/internal/domain"
	"github.com/ignite/churn-radar/internal/pkg/stat"
)

// CleaningSummary describes what Clean did to a table. It is informational
// only; nothing downstream depends on it.
type CleaningSummary struct {
	RowsIn            int                         `json:"rows_in"`
	BlankIDRows       int                         `json:"blank_id_rows"`
	DuplicatesRemoved int                         `json:"duplicates_removed"`
	RowsOut           int                         `json:"rows_out"`
	NullCounts        map[CanonicalColumn]int     `json:"null_counts"`
	Medians           map[CanonicalColumn]float64 `json:"medians"`
	MissingColumns    []CanonicalColumn           `json:"missing_columns,omitempty"` // numeric columns absent or with no value
	UnmappedColumns   []string                    `json:"unmapped_columns,omitempty"`
}

// Cleaner turns raw tables into customer records.
type Cleaner struct {
	aliases       map[string]CanonicalColumn
	missingTokens []string
}

// NewCleaner validates the configured extra aliases.
func NewCleaner(cfg config.IngestConfig) (*Cleaner, error) {
	c := &Cleaner{
		aliases:       make(map[string]CanonicalColumn, len(cfg.ExtraAliases)),
		missingTokens: cfg.MissingTokens,
	}
	for raw, canonical := range cfg.ExtraAliases {
		col, ok := LookupColumn(canonical)
		if !ok {
			return nil, fmt.Errorf("ingest alias %q: unknown column %q", raw, canonical)
		}
		c.aliases[NormalizeHeader(raw)] = col
	}
	return c, nil
}

// Dedup is the package Dedup with the configured header aliases applied, so
// it finds the identifier wherever Clean does.
func (c *Cleaner) Dedup(t Table) (Table, error) {
	return dedup(t, c.aliases)
}

// Clean canonicalizes headers, drops blank identifiers, keeps the last row
// per identifier and imputes every missing value. Medians are taken over
// the deduplicated rows. Records come back in the order of the kept rows.
func (c *Cleaner) Clean(t Table) ([]domain.CustomerRecord, *CleaningSummary, error) {
	m := MapColumns(t.Header, c.aliases)
	for _, required := range []CanonicalColumn{ColCustomerID, ColChurn} {
		if !m.Has(required) {
			return nil, nil, &DataFormatError{Column: required, Reason: "required column not found"}
		}
	}

	rows, blank, dups := dedupRows(t, m.Index[ColCustomerID])
	summary := &CleaningSummary{
		RowsIn:            t.Len(),
		BlankIDRows:       blank,
		DuplicatesRemoved: dups,
		RowsOut:           len(rows),
		NullCounts:        make(map[CanonicalColumn]int),
		Medians:           make(map[CanonicalColumn]float64),
	}
	if len(rows) == 0 {
		return nil, nil, &DataFormatError{Reason: "no rows remain after deduplication"}
	}
	deduped := Table{Header: t.Header, Rows: rows}
	vn := newValueNormalizer(c.missingTokens)

	// Numeric columns, churn included, are parsed then median-imputed.
	numeric := make(map[CanonicalColumn][]float64, len(NumericColumns)+1)
	for _, col := range append([]CanonicalColumn{ColChurn}, NumericColumns...) {
		idx, ok := m.Index[col]
		if !ok {
			summary.MissingColumns = append(summary.MissingColumns, col)
			numeric[col] = make([]float64, len(rows))
			continue
		}
		parse := vn.number
		if col == ColChurn {
			parse = vn.churn
		}
		values := make([]float64, len(rows))
		present := make([]bool, len(rows))
		observed := make([]float64, 0, len(rows))
		for i := range rows {
			if v, ok := parse(deduped.Cell(i, idx)); ok {
				values[i], present[i] = v, true
				observed = append(observed, v)
			}
		}
		nulls := len(rows) - len(observed)
		if len(observed) == 0 {
			// present but never parseable: imputes 0 like an absent column
			summary.MissingColumns = append(summary.MissingColumns, col)
		}
		median := stat.Median(observed)
		for i := range values {
			if !present[i] {
				values[i] = median
			}
		}
		summary.NullCounts[col] = nulls
		if nulls > 0 {
			summary.Medians[col] = median
		}
		numeric[col] = values
	}

	categorical := make(map[CanonicalColumn][]string, len(CategoricalColumns))
	for _, col := range CategoricalColumns {
		values := make([]string, len(rows))
		idx, ok := m.Index[col]
		nulls := 0
		for i := range rows {
			raw := ""
			if ok {
				raw = deduped.Cell(i, idx)
			}
			if vn.isMissing(raw) {
				nulls++
			}
			values[i] = vn.category(raw)
		}
		if ok {
			summary.NullCounts[col] = nulls
		}
		categorical[col] = values
	}

	unmapped := make([]int, 0, len(m.Unmapped))
	for idx := range m.Unmapped {
		unmapped = append(unmapped, idx)
	}
	sort.Ints(unmapped)
	for _, idx := range unmapped {
		summary.UnmappedColumns = append(summary.UnmappedColumns, m.Unmapped[idx])
	}

	records := make([]domain.CustomerRecord, len(rows))
	for i := range rows {
		rec := domain.CustomerRecord{
			ID:          strings.TrimSpace(deduped.Cell(i, m.Index[ColCustomerID])),
			Churned:     numeric[ColChurn][i] >= 0.5,
			MicroCohort: -1,
		}
		for _, col := range NumericColumns {
			setNumeric(&rec, col, numeric[col][i])
		}
		for _, col := range CategoricalColumns {
			setCategory(&rec, col, categorical[col][i])
		}
		if len(unmapped) > 0 {
			rec.Extra = make(map[string]string, len(unmapped))
			for _, idx := range unmapped {
				rec.Extra[m.Unmapped[idx]] = strings.TrimSpace(deduped.Cell(i, idx))
			}
		}
		records[i] = rec
	}
	return records, summary, nil
}

func setNumeric(rec *domain.CustomerRecord, col CanonicalColumn, v float64) {
	switch col {
	case ColTenure:
		rec.Tenure = v
	case ColRecency:
		rec.Recency = v
	case ColOrderCount:
		rec.OrderCount = v
	case ColCashbackAmount:
		rec.CashbackAmount = v
	case ColCouponUsed:
		rec.CouponUsed = v
	case ColOrderAmountHike:
		rec.OrderAmountHike = v
	case ColHourSpendOnApp:
		rec.HourSpendOnApp = v
	case ColDevices:
		rec.DevicesRegistered = v
	case ColSatisfaction:
		rec.SatisfactionScore = v
	case ColComplain:
		rec.Complaints = v
	case ColCityTier:
		rec.CityTier = v
	case ColWarehouseToHome:
		rec.WarehouseToHome = v
	}
}

func setCategory(rec *domain.CustomerRecord, col CanonicalColumn, v string) {
	switch col {
	case ColLoginDevice:
		rec.LoginDevice = v
	case ColPaymentMode:
		rec.PaymentMode = v
	case ColOrderCategory:
		rec.OrderCategory = v
	case ColMaritalStatus:
		rec.MaritalStatus = v
	case ColGender:
		rec.Gender = v
	}
}
