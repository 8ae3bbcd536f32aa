package segmentation

import (
	"sort"

	"github.com/ignite/churn-radar/internal/domain"
)

// Summarize computes cohort statistics. Members are listed by score
// descending, ties broken by identifier.
func Summarize(name string, kind domain.CohortKind, members []domain.CustomerRecord) domain.CohortStats {
	s := domain.CohortStats{Name: name, Kind: kind, Size: len(members), Members: []string{}}
	if len(members) == 0 {
		return s
	}

	sorted := make([]domain.CustomerRecord, len(members))
	copy(sorted, members)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		return sorted[i].ID < sorted[j].ID
	})

	n := float64(len(sorted))
	for _, r := range sorted {
		s.MeanScore += r.Score
		s.MeanValue += r.MonetaryValue
		s.MeanRecency += r.Recency
		s.MeanTenure += r.Tenure
		s.MeanEngagement += r.Engagement
		s.Members = append(s.Members, r.ID)
	}
	s.MeanScore /= n
	s.MeanValue /= n
	s.MeanRecency /= n
	s.MeanTenure /= n
	s.MeanEngagement /= n
	return s
}
