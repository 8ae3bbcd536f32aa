package api

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/churn-radar/internal/activation"
	"github.com/ignite/churn-radar/internal/agent"
	"github.com/ignite/churn-radar/internal/datanorm"
	"github.com/ignite/churn-radar/internal/domain"
	"github.com/ignite/churn-radar/internal/financial"
	"github.com/ignite/churn-radar/internal/pipeline"
	"github.com/ignite/churn-radar/internal/pkg/distlock"
	"github.com/ignite/churn-radar/internal/pkg/httputil"
	"github.com/ignite/churn-radar/internal/pkg/logger"
	"github.com/ignite/churn-radar/internal/service/runs"
	"github.com/ignite/churn-radar/internal/storage"
)

// RunView is a run without customer rows.
type RunView struct {
	RunID           string                    `json:"run_id"`
	Fingerprint     string                    `json:"fingerprint"`
	GeneratedAt     time.Time                 `json:"generated_at"`
	Cached          bool                      `json:"cached"`
	Summary         *datanorm.CleaningSummary `json:"summary,omitempty"`
	ActiveCustomers int                       `json:"active_customers"`
	Primary         []CohortSize              `json:"primary"`
	MicroCohorts    int                       `json:"micro_cohorts"`
	Rules           []string                  `json:"rules"`
	ROIAvailable    bool                      `json:"roi_available"`
	ROIError        string                    `json:"roi_error,omitempty"`
	Diagnostics     []domain.Diagnostic       `json:"diagnostics"`
}

// CohortSize is a primary cohort line of a RunView.
type CohortSize struct {
	Name      string               `json:"name"`
	Size      int                  `json:"size"`
	Archetype activation.Archetype `json:"archetype"`
}

func newRunView(res *pipeline.Result, cached bool) RunView {
	v := RunView{
		RunID:           res.RunID,
		Fingerprint:     res.Fingerprint,
		GeneratedAt:     res.GeneratedAt,
		Cached:          cached,
		Summary:         res.Summary,
		ActiveCustomers: res.ActiveCustomers,
		Primary:         make([]CohortSize, 0, len(res.Primary)),
		MicroCohorts:    len(res.Micro),
		Rules:           res.Rules,
		ROIAvailable:    res.ROI != nil,
		ROIError:        res.ROIError,
		Diagnostics:     res.Diagnostics,
	}
	for _, c := range res.Primary {
		v.Primary = append(v.Primary, CohortSize{Name: c.Name, Size: c.Size, Archetype: activation.ArchetypeOf(c)})
	}
	return v
}

type createRunRequest struct {
	DatasetURI string `json:"dataset_uri"`
}

// CreateRun runs the pipeline over an uploaded CSV or a dataset URI.
// Identical inputs return the stored run unless ?refresh=true.
//
//	POST /api/runs
func (h *Handlers) CreateRun(w http.ResponseWriter, r *http.Request) {
	table, ok := h.readTable(w, r)
	if !ok {
		return
	}

	fp := h.pipeline.Fingerprint(table)
	if r.URL.Query().Get("refresh") != "true" {
		if prev, err := h.results.ByFingerprint(r.Context(), fp); err == nil {
			httputil.OK(w, newRunView(prev, true))
			return
		} else if !errors.Is(err, storage.ErrCacheMiss) {
			logger.Warn("result cache lookup failed", "error", err)
		}
	}

	var res *pipeline.Result
	err := distlock.Guard(r.Context(), h.locks(distlock.RunKey(fp)), func(ctx context.Context) error {
		var err error
		res, err = h.pipeline.Run(ctx, table)
		if err != nil {
			return err
		}
		if err := h.results.Put(ctx, res); err != nil {
			return fmt.Errorf("store result: %w", err)
		}
		_, err = h.runs.Record(ctx, res)
		return err
	})
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.Created(w, newRunView(res, false))
}

func (h *Handlers) readTable(w http.ResponseWriter, r *http.Request) (datanorm.Table, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req createRunRequest
		if !httputil.Decode(w, r, &req) {
			return datanorm.Table{}, false
		}
		if req.DatasetURI == "" {
			httputil.BadRequest(w, "dataset_uri is required")
			return datanorm.Table{}, false
		}
		if !strings.HasPrefix(req.DatasetURI, "s3://") && !strings.HasPrefix(req.DatasetURI, "sql://") {
			httputil.BadRequest(w, "dataset_uri must be an s3:// or sql:// URI")
			return datanorm.Table{}, false
		}
		if h.loader == nil {
			httputil.BadRequest(w, "dataset loading is not configured")
			return datanorm.Table{}, false
		}
		t, err := h.loader.Load(r.Context(), req.DatasetURI)
		if err != nil {
			respondError(w, err)
			return datanorm.Table{}, false
		}
		return t, true
	}

	t, err := datanorm.ReadCSV(r.Body)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			httputil.Error(w, http.StatusRequestEntityTooLarge, "upload too large")
			return datanorm.Table{}, false
		}
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			httputil.ErrorCode(w, http.StatusBadRequest, "malformed_csv", pe.Error(), nil)
			return datanorm.Table{}, false
		}
		respondError(w, err)
		return datanorm.Table{}, false
	}
	return t, true
}

// ListRuns returns recent runs.
//
//	GET /api/runs?limit=20
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := h.runs.List(r.Context(), limit)
	if err != nil {
		respondError(w, err)
		return
	}
	if list == nil {
		list = []runs.Summary{}
	}
	httputil.OK(w, map[string]any{"runs": list, "count": len(list)})
}

func (h *Handlers) loadResult(w http.ResponseWriter, r *http.Request) (*pipeline.Result, bool) {
	res, err := h.results.Get(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		respondError(w, err)
		return nil, false
	}
	return res, true
}

// GetRun returns one run without customer rows.
//
//	GET /api/runs/{runID}
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	res, ok := h.loadResult(w, r)
	if !ok {
		return
	}
	httputil.OK(w, newRunView(res, false))
}

// GetCohorts returns primary cohort statistics in rule order.
//
//	GET /api/runs/{runID}/cohorts
func (h *Handlers) GetCohorts(w http.ResponseWriter, r *http.Request) {
	res, ok := h.loadResult(w, r)
	if !ok {
		return
	}
	httputil.OK(w, map[string]any{"cohorts": res.Primary, "rules": res.Rules})
}

// GetMicroCohorts returns micro-cohort statistics in id order.
//
//	GET /api/runs/{runID}/micro-cohorts
func (h *Handlers) GetMicroCohorts(w http.ResponseWriter, r *http.Request) {
	res, ok := h.loadResult(w, r)
	if !ok {
		return
	}
	httputil.OK(w, map[string]any{"micro_cohorts": res.Micro})
}

// GetCustomers pages through a run's scored customers, optionally filtered
// to one primary cohort.
//
//	GET /api/runs/{runID}/customers?cohort=&offset=&limit=
func (h *Handlers) GetCustomers(w http.ResponseWriter, r *http.Request) {
	res, ok := h.loadResult(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	cohort := q.Get("cohort")
	offset, _ := strconv.Atoi(q.Get("offset"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > maxCustomerPage {
		limit = defaultCustomerPage
	}

	matched := make([]domain.CustomerRecord, 0, len(res.Customers))
	for _, c := range res.Customers {
		if cohort == "" || strings.EqualFold(string(c.PrimaryCohort), cohort) {
			matched = append(matched, c)
		}
	}
	page := matched[min(offset, len(matched)):min(offset+limit, len(matched))]
	httputil.OK(w, map[string]any{
		"customers": page,
		"count":     len(page),
		"total":     len(matched),
		"offset":    offset,
	})
}

const (
	defaultCustomerPage = 100
	maxCustomerPage     = 1000
)

// GetROI returns the stored ROI report.
//
//	GET /api/runs/{runID}/roi
func (h *Handlers) GetROI(w http.ResponseWriter, r *http.Request) {
	res, ok := h.loadResult(w, r)
	if !ok {
		return
	}
	if res.ROI == nil {
		httputil.ErrorCode(w, http.StatusBadRequest, "invalid_assumption", res.ROIError, nil)
		return
	}
	httputil.OK(w, res.ROI)
}

type simulateRequest struct {
	Defaults     *domain.Assumptions           `json:"defaults"`
	Cohorts      map[string]domain.Assumptions `json:"cohorts"`
	MinSize      *int                          `json:"min_size"`
	MinMeanScore *float64                      `json:"min_mean_score"`
	IncludeMicro bool                          `json:"include_micro"`
}

// SimulateROI recomputes ROI for a stored run under what-if assumptions.
// Nothing is persisted.
//
//	POST /api/runs/{runID}/roi/simulate
func (h *Handlers) SimulateROI(w http.ResponseWriter, r *http.Request) {
	res, ok := h.loadResult(w, r)
	if !ok {
		return
	}
	var req simulateRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	cfg := h.pipeline.Config().ROI
	overrides := make(map[string]domain.Assumptions, len(cfg.Cohorts)+len(req.Cohorts))
	for k, v := range cfg.Cohorts {
		overrides[k] = v
	}
	if req.Defaults != nil {
		cfg.Defaults = *req.Defaults
		// explicit defaults replace the configured per-cohort table
		overrides = map[string]domain.Assumptions{}
	}
	for k, v := range req.Cohorts {
		overrides[k] = v
	}
	cfg.Cohorts = overrides
	if req.MinSize != nil {
		cfg.Readiness.MinSize = *req.MinSize
	}
	if req.MinMeanScore != nil {
		cfg.Readiness.MinMeanScore = *req.MinMeanScore
	}

	cohorts := res.Primary
	if req.IncludeMicro {
		cohorts = append(append([]domain.CohortStats{}, res.Primary...), res.Micro...)
	}
	report, err := financial.NewCalculator(cfg).Build(cohorts)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, report)
}

type briefResponse struct {
	Brief  agent.Brief  `json:"brief"`
	Prompt string       `json:"prompt,omitempty"`
	Draft  *agent.Draft `json:"draft,omitempty"`
}

// GetBrief returns the copy brief of one cohort. With ?draft=true the
// configured copywriter also drafts copy.
//
//	GET /api/runs/{runID}/cohorts/{cohort}/brief
func (h *Handlers) GetBrief(w http.ResponseWriter, r *http.Request) {
	res, ok := h.loadResult(w, r)
	if !ok {
		return
	}
	name, err := url.PathUnescape(chi.URLParam(r, "cohort"))
	if err != nil {
		httputil.BadRequest(w, "invalid cohort name")
		return
	}

	var view *pipeline.CohortView
	for _, v := range res.ExportView() {
		if strings.EqualFold(v.Name, name) {
			view = &v
			break
		}
	}
	if view == nil {
		httputil.NotFound(w, fmt.Sprintf("cohort %q not found", name))
		return
	}

	out := briefResponse{Brief: agent.NewBrief(*view, res.ROI)}
	if h.renderer != nil {
		if out.Prompt, err = h.renderer.Render(out.Brief); err != nil {
			respondError(w, err)
			return
		}
	}
	if r.URL.Query().Get("draft") == "true" {
		if h.copywriter == nil {
			httputil.BadRequest(w, "copy drafting is not configured")
			return
		}
		if out.Draft, err = h.copywriter.Draft(r.Context(), out.Brief); err != nil {
			respondError(w, err)
			return
		}
	}
	httputil.OK(w, out)
}

type archetypeEntry struct {
	activation.Playbook
	Cohorts []domain.CohortName `json:"cohorts"`
}

// ListArchetypes returns every archetype with its playbook and the primary
// cohorts mapped onto it.
//
//	GET /api/archetypes
func (h *Handlers) ListArchetypes(w http.ResponseWriter, r *http.Request) {
	profiles := activation.CohortProfiles()
	out := make([]archetypeEntry, 0, len(activation.AllArchetypes()))
	for _, a := range activation.AllArchetypes() {
		pb, _ := activation.PlaybookFor(a)
		entry := archetypeEntry{Playbook: pb, Cohorts: []domain.CohortName{}}
		for _, p := range profiles {
			if p.Archetype == a {
				entry.Cohorts = append(entry.Cohorts, p.Cohort)
			}
		}
		out = append(out, entry)
	}
	httputil.OK(w, map[string]any{"archetypes": out, "cohorts": profiles})
}
