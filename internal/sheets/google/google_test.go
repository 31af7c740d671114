package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"feeledger/internal/core"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// fakeSheets serves the two Values endpoints the client uses.
type fakeSheets struct {
	mu        sync.Mutex
	rows      int
	gets      int
	updates   []string
	inputOpts []string
	bodies    [][][]any
	failPut   bool
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, rng, ok := strings.Cut(r.URL.Path, "/values/")
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodGet:
		f.gets++
		values := make([][]any, f.rows)
		for i := range values {
			values[i] = []any{"x"}
		}
		json.NewEncoder(w).Encode(map[string]any{"range": rng, "values": values})
	case http.MethodPut:
		if f.failPut {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":{"code":400,"message":"bad range"}}`))
			return
		}
		var vr struct {
			Values [][]any `json:"values"`
		}
		if err := json.NewDecoder(r.Body).Decode(&vr); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.updates = append(f.updates, rng)
		f.inputOpts = append(f.inputOpts, r.URL.Query().Get("valueInputOption"))
		f.bodies = append(f.bodies, vr.Values)
		f.rows += len(vr.Values)
		json.NewEncoder(w).Encode(map[string]any{"updatedRange": rng})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type fakeState struct {
	gets      int
	updates   []string
	inputOpts []string
	bodies    [][][]any
}

func (f *fakeSheets) state() fakeState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fakeState{gets: f.gets, updates: f.updates, inputOpts: f.inputOpts, bodies: f.bodies}
}

func (f *fakeSheets) setFailPut(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failPut = fail
}

func newFakeClient(t *testing.T, fake *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return NewWithService(svc, "sheet-id", "Payments")
}

func record(id int64) core.PaymentRecord {
	return core.PaymentRecord{
		Payment: core.FeePayment{
			ID: id, Amount: core.Money{Cents: 2500}, PaymentMethod: "cash",
			PaymentDate: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		},
		AcademicYear: "2023-2024",
		FeeTypeName:  "Tuition",
		Student:      core.Student{StudentName: "Ada", RollNumber: "R-1", ClassName: "5"},
	}
}

func TestClient_AppendToEmptySheetWritesHeader(t *testing.T) {
	fake := &fakeSheets{}
	c := newFakeClient(t, fake)
	ctx := context.Background()

	ref, err := c.Append(ctx, record(1))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if ref != "Payments!A2:J2" {
		t.Errorf("ref = %q", ref)
	}
	st := fake.state()
	if len(st.updates) != 1 || st.updates[0] != "Payments!A1:J2" {
		t.Fatalf("updates = %v", st.updates)
	}
	if st.inputOpts[0] != "USER_ENTERED" {
		t.Errorf("valueInputOption = %q", st.inputOpts[0])
	}
	body := st.bodies[0]
	if len(body) != 2 || body[0][0] != "Payment Date" || body[1][1] != "R-1" || body[1][6] != "25.00" {
		t.Errorf("unexpected body %v", body)
	}

	ref, err = c.Append(ctx, record(2))
	if err != nil {
		t.Fatalf("second append: %v", err)
	}
	if ref != "Payments!A3:J3" {
		t.Errorf("second ref = %q", ref)
	}
	if gets := fake.state().gets; gets != 1 {
		t.Errorf("second append should use the cached row count, got %d reads", gets)
	}
}

func TestClient_AppendToExistingSheet(t *testing.T) {
	fake := &fakeSheets{rows: 5}
	c := newFakeClient(t, fake)

	ref, err := c.Append(context.Background(), record(9))
	if err != nil {
		t.Fatal(err)
	}
	st := fake.state()
	if ref != "Payments!A6:J6" || st.updates[0] != "Payments!A6:J6" {
		t.Errorf("ref = %q, updates = %v", ref, st.updates)
	}
	if len(st.bodies[0]) != 1 {
		t.Errorf("no header expected on a non-empty sheet: %v", st.bodies[0])
	}
}

func TestClient_AppendFailureInvalidatesCache(t *testing.T) {
	fake := &fakeSheets{rows: 3}
	c := newFakeClient(t, fake)
	ctx := context.Background()

	if _, err := c.Append(ctx, record(1)); err != nil {
		t.Fatal(err)
	}
	fake.setFailPut(true)
	if _, err := c.Append(ctx, record(2)); err == nil {
		t.Fatal("expected update error")
	}
	fake.setFailPut(false)
	if _, err := c.Append(ctx, record(2)); err != nil {
		t.Fatal(err)
	}
	if gets := fake.state().gets; gets != 2 {
		t.Errorf("expected a fresh read after a failed write, got %d reads", gets)
	}
}

func TestClient_AppendRejects(t *testing.T) {
	if _, err := (&Client{}).Append(context.Background(), record(1)); err == nil {
		t.Error("expected error without a service")
	}
	c := newFakeClient(t, &fakeSheets{})
	if _, err := c.Append(context.Background(), record(0)); err == nil {
		t.Error("expected error for a record without id")
	}
}

func TestNew_Config(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	ctx := context.Background()

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"missing spreadsheet", Config{SheetName: "Payments"}, "missing spreadsheet id"},
		{"missing sheet", Config{SpreadsheetID: "id"}, "missing sheet name"},
		{"missing credentials", Config{SpreadsheetID: "id", SheetName: "Payments"}, "missing service account credentials"},
		{"unreadable file", Config{SpreadsheetID: "id", SheetName: "Payments", CredentialsFile: filepath.Join(t.TempDir(), "nope.json")}, "read service account file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(ctx, tt.cfg)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error = %v, want %q", err, tt.want)
			}
		})
	}
}
