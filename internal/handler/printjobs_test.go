package handler_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/picada-pos/api/internal/database"
	"github.com/picada-pos/api/internal/handler"
)

type mockPrintJobStore struct {
	jobs map[uuid.UUID]database.PrintJob
}

func newMockPrintJobStore() *mockPrintJobStore {
	return &mockPrintJobStore{jobs: make(map[uuid.UUID]database.PrintJob)}
}

func (m *mockPrintJobStore) ListPendingPrintJobs(_ context.Context, printerName string) ([]database.PrintJob, error) {
	var out []database.PrintJob
	for _, j := range m.jobs {
		if j.PrinterName == printerName && j.State == "PENDING" {
			out = append(out, j)
		}
	}
	return out, nil
}

func (m *mockPrintJobStore) AckPrintJob(_ context.Context, arg database.AckPrintJobParams) (database.PrintJob, error) {
	j, ok := m.jobs[arg.ID]
	if !ok || j.State != "PENDING" {
		return database.PrintJob{}, pgx.ErrNoRows
	}
	j.State = arg.State
	j.Error = arg.Error
	m.jobs[arg.ID] = j
	return j, nil
}

func setupPrintJobRouter(store *mockPrintJobStore) *chi.Mux {
	h := handler.NewPrintJobHandler(store)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func TestListPendingPrintJobs(t *testing.T) {
	store := newMockPrintJobStore()
	pending := database.PrintJob{ID: uuid.New(), Kind: "BILL", PrinterName: "cashier-epson", Body: []byte(`{"order_number":3}`), State: "PENDING"}
	store.jobs[pending.ID] = pending
	other := database.PrintJob{ID: uuid.New(), Kind: "KITCHEN_TICKET", PrinterName: "bar-epson", Body: []byte(`{}`), State: "PENDING"}
	store.jobs[other.ID] = other
	router := setupPrintJobRouter(store)

	rr := doRequest(t, router, "GET", "/print-jobs/pending?printer=cashier-epson", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}

	jobs := decodeResponse(t, rr)["jobs"].([]interface{})
	if len(jobs) != 1 {
		t.Fatalf("jobs: got %d, want 1", len(jobs))
	}
	job := jobs[0].(map[string]interface{})
	if job["id"] != pending.ID.String() {
		t.Errorf("job id: got %v, want %s", job["id"], pending.ID)
	}
	body := job["body"].(map[string]interface{})
	if body["order_number"] != float64(3) {
		t.Errorf("job body: got %v", body)
	}
}

func TestListPendingPrintJobs_MissingPrinter(t *testing.T) {
	router := setupPrintJobRouter(newMockPrintJobStore())

	rr := doRequest(t, router, "GET", "/print-jobs/pending", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestAckPrintJob_Success(t *testing.T) {
	store := newMockPrintJobStore()
	job := database.PrintJob{ID: uuid.New(), Kind: "BILL", PrinterName: "cashier-epson", State: "PENDING"}
	store.jobs[job.ID] = job
	router := setupPrintJobRouter(store)

	rr := doRequest(t, router, "POST", "/print-jobs/"+job.ID.String()+"/ack",
		map[string]interface{}{"ok": true})

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}
	if got := store.jobs[job.ID].State; got != "PRINTED" {
		t.Errorf("state: got %s, want PRINTED", got)
	}
}

func TestAckPrintJob_Failure(t *testing.T) {
	store := newMockPrintJobStore()
	job := database.PrintJob{ID: uuid.New(), Kind: "BILL", PrinterName: "cashier-epson", State: "PENDING"}
	store.jobs[job.ID] = job
	router := setupPrintJobRouter(store)

	rr := doRequest(t, router, "POST", "/print-jobs/"+job.ID.String()+"/ack",
		map[string]interface{}{"ok": false, "error": "paper jam"})

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}
	stored := store.jobs[job.ID]
	if stored.State != "ERROR" {
		t.Errorf("state: got %s, want ERROR", stored.State)
	}
	if !stored.Error.Valid || stored.Error.String != "paper jam" {
		t.Errorf("error: got %+v, want paper jam", stored.Error)
	}
}

func TestAckPrintJob_NotFound(t *testing.T) {
	router := setupPrintJobRouter(newMockPrintJobStore())

	rr := doRequest(t, router, "POST", "/print-jobs/"+uuid.NewString()+"/ack",
		map[string]interface{}{"ok": true})

	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}
