package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/churn-radar/internal/agent"
	"github.com/ignite/churn-radar/internal/config"
	"github.com/ignite/churn-radar/internal/datanorm"
	"github.com/ignite/churn-radar/internal/domain"
	"github.com/ignite/churn-radar/internal/financial"
	"github.com/ignite/churn-radar/internal/pipeline"
	"github.com/ignite/churn-radar/internal/pkg/distlock"
	"github.com/ignite/churn-radar/internal/pkg/httputil"
)

// tenCustomersCSV makes c00, c03, c06 and c09 payment-sensitive.
func tenCustomersCSV() string {
	var b strings.Builder
	b.WriteString("CustomerID,Churn,Tenure,DaySinceLastOrder,CouponUsed,CashbackAmount,HourSpendOnApp\n")
	for i := 0; i < 10; i++ {
		recency, coupon := 2, 0
		if i%3 == 0 {
			recency, coupon = 10, 5
		}
		fmt.Fprintf(&b, "c%02d,1,1,%d,%d,100,%d\n", i, recency, coupon, i)
	}
	return b.String()
}

type testServer struct {
	*httptest.Server
	pipeline *pipeline.Pipeline
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := config.Default()
	cfg.MicroCohorts.Clusters = 3
	p, err := pipeline.New(cfg)
	require.NoError(t, err)

	renderer, err := agent.NewRenderer("")
	require.NoError(t, err)

	h := NewHandlers(Deps{
		Pipeline:   p,
		Renderer:   renderer,
		Copywriter: agent.NewTemplateCopywriter(),
	})
	srv := httptest.NewServer(SetupRoutes(h, NewHealthChecker(nil, nil, nil, ""), nil))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, pipeline: p}
}

func (s *testServer) postCSV(t *testing.T, body, query string) *http.Response {
	t.Helper()
	resp, err := http.Post(s.URL+"/api/runs"+query, "text/csv", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (s *testServer) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(s.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func createRun(t *testing.T, s *testServer) RunView {
	t.Helper()
	resp := s.postCSV(t, tenCustomersCSV(), "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[RunView](t, resp)
}

func TestCreateRun(t *testing.T) {
	s := newTestServer(t)
	run := createRun(t, s)

	assert.NotEmpty(t, run.RunID)
	assert.Len(t, run.Fingerprint, 64)
	assert.False(t, run.Cached)
	assert.Equal(t, 10, run.ActiveCustomers)
	require.Len(t, run.Primary, 4)
	assert.Equal(t, string(domain.CohortPaymentSensitive), run.Primary[0].Name)
	assert.Equal(t, 4, run.Primary[0].Size)
	assert.True(t, run.ROIAvailable)
	assert.NotEmpty(t, run.Diagnostics)
}

func TestCreateRunReturnsCachedResult(t *testing.T) {
	s := newTestServer(t)
	first := createRun(t, s)

	resp := s.postCSV(t, tenCustomersCSV(), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cached := decode[RunView](t, resp)
	assert.True(t, cached.Cached)
	assert.Equal(t, first.RunID, cached.RunID)

	resp = s.postCSV(t, tenCustomersCSV(), "?refresh=true")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	fresh := decode[RunView](t, resp)
	assert.NotEqual(t, first.RunID, fresh.RunID)
	assert.Equal(t, first.Fingerprint, fresh.Fingerprint)
}

func TestCreateRunErrors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name     string
		body     string
		status   int
		wantCode string
	}{
		{name: "missing identifier", body: "Churn,Tenure\n1,4\n", status: http.StatusUnprocessableEntity, wantCode: "data_format"},
		{name: "empty body", body: "", status: http.StatusUnprocessableEntity, wantCode: "data_format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := s.postCSV(t, tt.body, "")
			assert.Equal(t, tt.status, resp.StatusCode)
			body := decode[httputil.ErrorResponse](t, resp)
			assert.Equal(t, tt.wantCode, body.Code)
		})
	}
}

type fakeLoader struct {
	body string
	uris []string
}

func (f *fakeLoader) Load(_ context.Context, uri string) (datanorm.Table, error) {
	f.uris = append(f.uris, uri)
	return datanorm.ReadCSV(strings.NewReader(f.body))
}

func TestCreateRunFromURI(t *testing.T) {
	p, err := pipeline.New(config.Default())
	require.NoError(t, err)
	loader := &fakeLoader{body: tenCustomersCSV()}
	srv := httptest.NewServer(SetupRoutes(NewHandlers(Deps{Pipeline: p, Loader: loader}), nil, nil))
	defer srv.Close()

	post := func(body string) *http.Response {
		resp, err := http.Post(srv.URL+"/api/runs", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	resp := post(`{"dataset_uri":"s3://bucket/customers.csv"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, 10, decode[RunView](t, resp).ActiveCustomers)

	assert.Equal(t, http.StatusBadRequest, post(`{"dataset_uri":"/etc/passwd"}`).StatusCode)
	assert.Equal(t, http.StatusBadRequest, post(`{}`).StatusCode)
	assert.Equal(t, []string{"s3://bucket/customers.csv"}, loader.uris)
}

func TestCreateRunFromURIWithoutLoader(t *testing.T) {
	s := newTestServer(t)
	resp, err := http.Post(s.URL+"/api/runs", "application/json", strings.NewReader(`{"dataset_uri":"s3://b/k.csv"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateRunConflict(t *testing.T) {
	s := newTestServer(t)
	tbl, err := datanorm.ReadCSV(strings.NewReader(tenCustomersCSV()))
	require.NoError(t, err)

	held := distlock.NewLocalLock(distlock.RunKey(s.pipeline.Fingerprint(tbl)))
	ok, err := held.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	defer held.Release(context.Background())

	resp := s.postCSV(t, tenCustomersCSV(), "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "run_in_progress", decode[httputil.ErrorResponse](t, resp).Code)
}

func TestGetRun(t *testing.T) {
	s := newTestServer(t)
	run := createRun(t, s)

	resp := s.get(t, "/api/runs/"+run.RunID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw := decode[map[string]any](t, resp)
	assert.Equal(t, run.RunID, raw["run_id"])
	assert.NotContains(t, raw, "customers")

	resp = s.get(t, "/api/runs/does-not-exist")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", decode[httputil.ErrorResponse](t, resp).Code)
}

func TestListRuns(t *testing.T) {
	s := newTestServer(t)
	run := createRun(t, s)

	resp := s.get(t, "/api/runs")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[struct {
		Runs []struct {
			ID          string `json:"id"`
			Fingerprint string `json:"fingerprint"`
		} `json:"runs"`
		Count int `json:"count"`
	}](t, resp)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, run.RunID, body.Runs[0].ID)
	assert.Equal(t, run.Fingerprint, body.Runs[0].Fingerprint)
}

func TestGetCohorts(t *testing.T) {
	s := newTestServer(t)
	run := createRun(t, s)

	resp := s.get(t, "/api/runs/"+run.RunID+"/cohorts")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[struct {
		Cohorts []domain.CohortStats `json:"cohorts"`
		Rules   []string             `json:"rules"`
	}](t, resp)
	require.Len(t, body.Cohorts, 4)
	assert.ElementsMatch(t, []string{"c00", "c03", "c06", "c09"}, body.Cohorts[0].Members)
	assert.NotEmpty(t, body.Rules)

	resp = s.get(t, "/api/runs/"+run.RunID+"/micro-cohorts")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	micro := decode[struct {
		MicroCohorts []domain.CohortStats `json:"micro_cohorts"`
	}](t, resp)
	require.NotEmpty(t, micro.MicroCohorts)
	total := 0
	for _, c := range micro.MicroCohorts {
		assert.Equal(t, domain.KindMicro, c.Kind)
		total += c.Size
	}
	assert.Equal(t, 10, total)
}

func TestGetCustomers(t *testing.T) {
	s := newTestServer(t)
	run := createRun(t, s)

	type page struct {
		Customers []domain.CustomerRecord `json:"customers"`
		Count     int                     `json:"count"`
		Total     int                     `json:"total"`
	}

	resp := s.get(t, "/api/runs/"+run.RunID+"/customers")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	all := decode[page](t, resp)
	assert.Equal(t, 10, all.Total)
	require.Len(t, all.Customers, 10)
	for _, c := range all.Customers {
		assert.GreaterOrEqual(t, c.MicroCohort, 0)
		assert.InDelta(t, c.HourSpendOnApp+0.5*c.DevicesRegistered, c.Engagement, 1e-9)
	}

	resp = s.get(t, "/api/runs/"+run.RunID+"/customers?cohort="+url.QueryEscape("payment-sensitive churners")+"&limit=3")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ps := decode[page](t, resp)
	assert.Equal(t, 4, ps.Total)
	assert.Equal(t, 3, ps.Count)
	for _, c := range ps.Customers {
		assert.Equal(t, domain.CohortPaymentSensitive, c.PrimaryCohort)
	}

	resp = s.get(t, "/api/runs/"+run.RunID+"/customers?offset=50")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	past := decode[page](t, resp)
	assert.Equal(t, 10, past.Total)
	assert.Empty(t, past.Customers)
}

func TestGetROI(t *testing.T) {
	s := newTestServer(t)
	run := createRun(t, s)

	resp := s.get(t, "/api/runs/"+run.RunID+"/roi")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	report := decode[financial.Report](t, resp)
	assert.Equal(t, 4, report.Waterfall.Customers)
	assert.InDelta(t, -1.0, report.Waterfall.NetProfit, 1e-9)
}

func TestSimulateROI(t *testing.T) {
	s := newTestServer(t)
	run := createRun(t, s)

	post := func(body string) *http.Response {
		resp, err := http.Post(s.URL+"/api/runs/"+run.RunID+"/roi/simulate", "application/json", bytes.NewBufferString(body))
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	resp := post(`{"defaults":{"reactivation_rate":0.5,"average_order_value":100,"margin":0.5,"sending_cost_per_contact":1,"incentive_cost_per_reactivation":10}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	report := decode[financial.Report](t, resp)
	// 4 contacts, 2 reactivated: 200 revenue, 100 gross, 4 + 20 cost
	assert.Equal(t, 2, report.Waterfall.ExpectedReactivated)
	assert.InDelta(t, 76.0, report.Waterfall.NetProfit, 1e-9)

	resp = post(`{"cohorts":{"High-tenure recent drop":{"reactivation_rate":2}}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_assumption", decode[httputil.ErrorResponse](t, resp).Code)

	resp = post(`{"unknown":true}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// the stored report is untouched
	resp = s.get(t, "/api/runs/"+run.RunID+"/roi")
	stored := decode[financial.Report](t, resp)
	assert.InDelta(t, -1.0, stored.Waterfall.NetProfit, 1e-9)
}

func TestGetBrief(t *testing.T) {
	s := newTestServer(t)
	run := createRun(t, s)
	base := "/api/runs/" + run.RunID + "/cohorts/" + url.PathEscape(string(domain.CohortPaymentSensitive)) + "/brief"

	resp := s.get(t, base)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[briefResponse](t, resp)
	assert.Equal(t, string(domain.CohortPaymentSensitive), body.Brief.Cohort)
	assert.Equal(t, 4, body.Brief.Size)
	assert.NotEmpty(t, body.Prompt)
	assert.Nil(t, body.Draft)
	for _, id := range []string{"c00", "c03", "c06", "c09"} {
		assert.NotContains(t, body.Prompt, id)
	}

	resp = s.get(t, base+"?draft=true")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decode[briefResponse](t, resp)
	require.NotNil(t, body.Draft)
	assert.Equal(t, "template", body.Draft.Source)
	assert.NotEmpty(t, body.Draft.Email.Subject)

	resp = s.get(t, "/api/runs/"+run.RunID+"/cohorts/nobody/brief")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListArchetypes(t *testing.T) {
	s := newTestServer(t)
	resp := s.get(t, "/api/archetypes")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[struct {
		Archetypes []archetypeEntry `json:"archetypes"`
	}](t, resp)
	require.Len(t, body.Archetypes, 5)
	mapped := 0
	for _, a := range body.Archetypes {
		assert.NotEmpty(t, a.WhatToSay, a.Archetype)
		mapped += len(a.Cohorts)
	}
	assert.Equal(t, 4, mapped)
}

func TestHealthNotConfigured(t *testing.T) {
	s := newTestServer(t)
	resp := s.get(t, "/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[HealthStatus](t, resp)
	assert.Equal(t, "healthy", body.Status)
	for _, name := range []string{"database", "redis", "s3"} {
		assert.Equal(t, "not_configured", body.Checks[name].Status, name)
	}
}
