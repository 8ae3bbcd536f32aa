package datanorm

import (
	"strings"
	"unicode"
)

// CanonicalColumn is a normalized column name used across all dataset sources.
type CanonicalColumn string

const (
	ColCustomerID      CanonicalColumn = "CustomerID"
	ColChurn           CanonicalColumn = "Churn"
	ColTenure          CanonicalColumn = "Tenure"
	ColRecency         CanonicalColumn = "DaySinceLastOrder"
	ColOrderCount      CanonicalColumn = "OrderCount"
	ColCashbackAmount  CanonicalColumn = "CashbackAmount"
	ColCouponUsed      CanonicalColumn = "CouponUsed"
	ColOrderAmountHike CanonicalColumn = "OrderAmountHikeFromlastYear"
	ColHourSpendOnApp  CanonicalColumn = "HourSpendOnApp"
	ColDevices         CanonicalColumn = "NumberOfDeviceRegistered"
	ColSatisfaction    CanonicalColumn = "SatisfactionScore"
	ColComplain        CanonicalColumn = "Complain"
	ColCityTier        CanonicalColumn = "CityTier"
	ColWarehouseToHome CanonicalColumn = "WarehouseToHome"
	ColLoginDevice     CanonicalColumn = "PreferredLoginDevice"
	ColPaymentMode     CanonicalColumn = "PreferredPaymentMode"
	ColOrderCategory   CanonicalColumn = "PreferedOrderCat"
	ColMaritalStatus   CanonicalColumn = "MaritalStatus"
	ColGender          CanonicalColumn = "Gender"
)

// NumericColumns are imputed with the column median.
var NumericColumns = []CanonicalColumn{
	ColTenure,
	ColRecency,
	ColOrderCount,
	ColCashbackAmount,
	ColCouponUsed,
	ColOrderAmountHike,
	ColHourSpendOnApp,
	ColDevices,
	ColSatisfaction,
	ColComplain,
	ColCityTier,
	ColWarehouseToHome,
}

// CategoricalColumns are imputed with "Unknown".
var CategoricalColumns = []CanonicalColumn{
	ColLoginDevice,
	ColPaymentMode,
	ColOrderCategory,
	ColMaritalStatus,
	ColGender,
}

// columnAliases maps normalized header names to canonical columns.
// When multiple raw headers mean the same thing, they all map here.
var columnAliases = map[string]CanonicalColumn{
	// Identifier
	"customerid": ColCustomerID,
	"custid":     ColCustomerID,
	"customerno": ColCustomerID,
	"userid":     ColCustomerID,

	// Churn flag
	"churn":     ColChurn,
	"churned":   ColChurn,
	"churnflag": ColChurn,
	"ischurned": ColChurn,

	"tenure":       ColTenure,
	"tenuremonths": ColTenure,

	// Recency
	"daysincelastorder":  ColRecency,
	"dayssincelastorder": ColRecency,
	"recency":            ColRecency,
	"recencydays":        ColRecency,

	"ordercount": ColOrderCount,
	"orders":     ColOrderCount,

	// Monetary proxies
	"cashbackamount":              ColCashbackAmount,
	"cashback":                    ColCashbackAmount,
	"couponused":                  ColCouponUsed,
	"coupons":                     ColCouponUsed,
	"orderamounthikefromlastyear": ColOrderAmountHike,
	"orderamounthike":             ColOrderAmountHike,

	// Engagement inputs
	"hourspendonapp":           ColHourSpendOnApp,
	"hoursppendapp":            ColHourSpendOnApp, // misspelt export header
	"hoursonapp":               ColHourSpendOnApp,
	"numberofdeviceregistered": ColDevices,
	"devicesregistered":        ColDevices,

	// Satisfaction
	"satisfactionscore": ColSatisfaction,
	"satisfaction":      ColSatisfaction,
	"complain":          ColComplain,
	"complaints":        ColComplain,
	"complaint":         ColComplain,

	"citytier":        ColCityTier,
	"warehousetohome": ColWarehouseToHome,

	// Categorical
	"preferredlogindevice": ColLoginDevice,
	"preferredpaymentmode": ColPaymentMode,
	"paymentmode":          ColPaymentMode,
	"preferedordercat":     ColOrderCategory,
	"preferredordercat":    ColOrderCategory,
	"maritalstatus":        ColMaritalStatus,
	"gender":               ColGender,
}

// NormalizeHeader lower-cases a header and strips whitespace and punctuation,
// so "Customer ID", "customer_id" and "CustomerID" all collapse to one key.
func NormalizeHeader(h string) string {
	var b strings.Builder
	b.Grow(len(h))
	for _, r := range strings.ToLower(h) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// LookupColumn resolves a canonical column from its own name, e.g. "Tenure".
func LookupColumn(name string) (CanonicalColumn, bool) {
	col, ok := columnAliases[NormalizeHeader(name)]
	return col, ok
}

// ColumnMapping records which raw header index feeds each canonical column.
type ColumnMapping struct {
	Index    map[CanonicalColumn]int
	Unmapped map[int]string // raw index -> trimmed header, carried through as extras
	RawNames []string
}

// Has reports whether the header supplied the column.
func (m *ColumnMapping) Has(col CanonicalColumn) bool {
	_, ok := m.Index[col]
	return ok
}

// MapColumns resolves raw headers to canonical columns. extra adds
// caller-supplied aliases (normalized like any header) on top of the
// built-in table. The first header mapping to a column wins; later
// duplicates are carried through as unmapped.
func MapColumns(header []string, extra map[string]CanonicalColumn) *ColumnMapping {
	m := &ColumnMapping{
		Index:    make(map[CanonicalColumn]int, len(header)),
		Unmapped: make(map[int]string),
		RawNames: header,
	}

	for i, h := range header {
		key := NormalizeHeader(strings.Trim(strings.TrimSpace(h), "\"'"))
		col, ok := extra[key]
		if !ok {
			col, ok = columnAliases[key]
		}
		if !ok || m.Has(col) {
			m.Unmapped[i] = strings.TrimSpace(h)
			continue
		}
		m.Index[col] = i
	}
	return m
}
