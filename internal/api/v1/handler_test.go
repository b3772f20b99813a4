package v1

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"planimport/internal/importer"
	"planimport/internal/model"
	"planimport/internal/reconcile"
	"planimport/internal/store"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fixture struct {
	router *gin.Engine
	store  *store.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "plan.db"))
	if err != nil {
		t.Fatalf("init store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	h := NewHandler(Deps{
		Store:       st,
		Coordinator: importer.NewCoordinator(st, nil, importer.DefaultOptions()),
		Reconcile:   reconcile.NewService(st, nil, uuid.NewString),
		UploadDir:   t.TempDir(),
	})
	r := gin.New()
	h.RegisterRoutes(r.Group("/api/v1"))
	return &fixture{router: r, store: st}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

// seedJune 两个工作包，2025 年 6 月合计 0.7
func (f *fixture) seedJune(t *testing.T) (projectID, wp1, wp2, anaID string) {
	t.Helper()
	ctx := context.Background()
	ana, err := f.store.CreateIdentity(ctx, "Ana Silva")
	if err != nil {
		t.Fatalf("create identity: %v", err)
	}
	alloc := func(v float64) []model.MonthlyAllocation {
		return []model.MonthlyAllocation{{Month: 6, Year: 2025, FractionOfFullTime: v}}
	}
	plan := &model.Plan{WorkPackages: []model.WorkPackage{
		{Code: "WP1", Name: "Gestão", Resources: []model.Resource{{DisplayName: "Ana Silva", IdentityID: &ana.ID, Allocations: alloc(0.5)}}},
		{Code: "WP2", Name: "Desenvolvimento", Resources: []model.Resource{{DisplayName: "Ana Silva", IdentityID: &ana.ID, Allocations: alloc(0.2)}}},
	}}
	pid, err := f.store.SavePlan(ctx, plan, "june.xlsx")
	if err != nil {
		t.Fatalf("save plan: %v", err)
	}
	g, err := f.store.LoadGraph(ctx, pid)
	if err != nil {
		t.Fatalf("load graph: %v", err)
	}
	return pid, g.WorkPackages[0].ID, g.WorkPackages[1].ID, ana.ID
}

func edit(wp, identity string, month int, real string) map[string]any {
	return map[string]any{
		"workPackageId":      wp,
		"resourceIdentityId": identity,
		"month":              month,
		"year":               2025,
		"real":               real,
	}
}

func TestApproveCommitAndBuckets(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	pid, wp1, wp2, ana := f.seedJune(t)
	base := "/api/v1/projects/" + pid

	if w := f.do(t, http.MethodPost, base+"/approve", nil); w.Code != http.StatusOK {
		t.Fatalf("approve want=200 got=%d body=%s", w.Code, w.Body.String())
	}
	if w := f.do(t, http.MethodPost, base+"/approve", nil); w.Code != http.StatusConflict {
		t.Fatalf("second approve want=409 got=%d", w.Code)
	}
	if w := f.do(t, http.MethodPost, base+"/reject", nil); w.Code != http.StatusConflict {
		t.Fatalf("reject after approve want=409 got=%d", w.Code)
	}

	w := f.do(t, http.MethodPut, base+"/allocations", map[string]any{
		"edits": []any{edit(wp1, ana, 6, "0.52")},
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("divergent commit want=409 got=%d body=%s", w.Code, w.Body.String())
	}
	var verdict reconcile.Verdict
	if err := json.Unmarshal(w.Body.Bytes(), &verdict); err != nil {
		t.Fatalf("decode verdict: %v", err)
	}
	if verdict.OK || len(verdict.Divergent) != 1 || !verdict.Divergent[0].Real.Equal(decimal.RequireFromString("0.72")) {
		t.Fatalf("unexpected verdict: %+v", verdict)
	}

	w = f.do(t, http.MethodPost, base+"/allocations/validate", map[string]any{
		"edits": []any{edit(wp1, ana, 6, "0.4"), edit(wp2, ana, 6, "0.3")},
	})
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok":true`) {
		t.Fatalf("validate want ok got=%d body=%s", w.Code, w.Body.String())
	}

	w = f.do(t, http.MethodPut, base+"/allocations", map[string]any{
		"mode":  "whole_year",
		"year":  2025,
		"edits": []any{edit(wp1, ana, 6, "0.4"), edit(wp2, ana, 6, "0.3")},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("balanced commit want=200 got=%d body=%s", w.Code, w.Body.String())
	}

	w = f.do(t, http.MethodGet, base+"/buckets?year=2025", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("buckets want=200 got=%d", w.Code)
	}
	var buckets struct {
		Items []reconcile.BucketState `json:"items"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &buckets); err != nil {
		t.Fatalf("decode buckets: %v", err)
	}
	if len(buckets.Items) != 1 || buckets.Items[0].Month != 6 || buckets.Items[0].State != reconcile.StateBalanced {
		t.Fatalf("unexpected buckets: %+v", buckets.Items)
	}
}

func TestBadRequestsAndNotFound(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	pid, wp1, _, ana := f.seedJune(t)

	cases := []struct {
		method, path string
		body         any
		want         int
	}{
		{http.MethodGet, "/api/v1/projects/missing", nil, http.StatusNotFound},
		{http.MethodPost, "/api/v1/projects/missing/approve", nil, http.StatusNotFound},
		{http.MethodGet, "/api/v1/projects/" + pid + "/buckets?year=abc", nil, http.StatusBadRequest},
		{http.MethodPut, "/api/v1/projects/" + pid + "/allocations", map[string]any{"mode": "monthly", "edits": []any{edit(wp1, ana, 6, "0.5")}}, http.StatusBadRequest},
		{http.MethodPut, "/api/v1/projects/" + pid + "/allocations", map[string]any{"edits": []any{}}, http.StatusBadRequest},
		{http.MethodPut, "/api/v1/projects/" + pid + "/allocations", map[string]any{"edits": []any{edit(wp1, ana, 6, "1.5")}}, http.StatusBadRequest},
		{http.MethodPost, "/api/v1/identities", map[string]any{"name": "  "}, http.StatusBadRequest},
		{http.MethodPost, "/api/v1/resources/missing/bind", map[string]any{"identityId": ana}, http.StatusNotFound},
	}
	for _, tc := range cases {
		if w := f.do(t, tc.method, tc.path, tc.body); w.Code != tc.want {
			t.Fatalf("%s %s want=%d got=%d body=%s", tc.method, tc.path, tc.want, w.Code, w.Body.String())
		}
	}
}

func TestIdentitiesAndBind(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	pid, _, _, _ := f.seedJune(t)

	w := f.do(t, http.MethodPost, "/api/v1/identities", map[string]any{"name": "João Lopes"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create identity want=201 got=%d", w.Code)
	}
	var joao model.Identity
	if err := json.Unmarshal(w.Body.Bytes(), &joao); err != nil {
		t.Fatalf("decode identity: %v", err)
	}

	w = f.do(t, http.MethodGet, "/api/v1/identities", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "João Lopes") {
		t.Fatalf("list identities got=%d body=%s", w.Code, w.Body.String())
	}

	g, _ := f.store.LoadGraph(context.Background(), pid)
	resourceID := g.WorkPackages[0].Resources[0].ID
	w = f.do(t, http.MethodPost, "/api/v1/resources/"+resourceID+"/bind", map[string]any{"identityId": joao.ID})
	if w.Code != http.StatusOK {
		t.Fatalf("bind want=200 got=%d body=%s", w.Code, w.Body.String())
	}
	g, _ = f.store.LoadGraph(context.Background(), pid)
	if g.WorkPackages[0].Resources[0].IdentityID != joao.ID {
		t.Fatalf("resource not rebound: %+v", g.WorkPackages[0].Resources[0])
	}
}

func TestExportDownload(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	pid, _, _, _ := f.seedJune(t)

	w := f.do(t, http.MethodGet, "/api/v1/projects/"+pid+"/export", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("export want=200 got=%d body=%s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != xlsxContentType {
		t.Fatalf("unexpected content type %q", ct)
	}
	wb, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatalf("open exported workbook: %v", err)
	}
	defer wb.Close()
	if v, _ := wb.GetCellValue("Afetação RH", "A2"); v != "WP1" {
		t.Fatalf("want WP1 got=%q", v)
	}
}

func buildUpload(t *testing.T) (*bytes.Buffer, string) {
	t.Helper()
	x := excelize.NewFile()
	defer x.Close()
	if err := x.SetSheetName("Sheet1", "Afetação RH"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	cells := map[string]any{
		"D1": 45809, "E1": 45839, "F1": 45870,
		"A2": "WP1", "B2": "Gestão", "C2": "Rui Alves", "D2": 0.5, "E2": 0.5,
	}
	for cell, v := range cells {
		if err := x.SetCellValue("Afetação RH", cell, v); err != nil {
			t.Fatalf("set %s: %v", cell, err)
		}
	}
	content, err := x.WriteToBuffer()
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("file", "rui.xlsx")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	if _, err := part.Write(content.Bytes()); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return body, mw.FormDataContentType()
}

func TestImportStreamsProgressAndPersists(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	body, contentType := buildUpload(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/import", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("import want=200 got=%d body=%s", w.Code, w.Body.String())
	}
	var types []string
	scanner := bufio.NewScanner(w.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var evt importer.ProgressEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &evt); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if evt.Type == "error" {
			t.Fatalf("import error: %s", evt.Message)
		}
		types = append(types, evt.Type)
	}
	joined := strings.Join(types, ",")
	if !strings.HasPrefix(joined, "start") || !strings.Contains(joined, "saved") || !strings.HasSuffix(joined, "done") {
		t.Fatalf("unexpected event sequence: %s", joined)
	}

	w = f.do(t, http.MethodGet, "/api/v1/projects", nil)
	var list struct {
		Items []model.Project `json:"items"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode projects: %v", err)
	}
	if len(list.Items) != 1 || list.Items[0].Name != "rui" {
		t.Fatalf("unexpected projects: %+v", list.Items)
	}

	w = f.do(t, http.MethodGet, "/api/v1/imports", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), fmt.Sprintf("%q", "rui.xlsx")) {
		t.Fatalf("unexpected imports: %d %s", w.Code, w.Body.String())
	}
}

func TestStatusCountsProjects(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	pid, _, _, _ := f.seedJune(t)
	if w := f.do(t, http.MethodPost, "/api/v1/projects/"+pid+"/approve", nil); w.Code != http.StatusOK {
		t.Fatalf("approve want=200 got=%d", w.Code)
	}

	w := f.do(t, http.MethodGet, "/api/v1/status", nil)
	var got StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !got.Initialized || got.TotalProjects != 1 || got.Approved != 1 || got.Identities != 1 {
		t.Fatalf("unexpected status: %+v", got)
	}
}
