package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/lunchfund/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/lunchfund/internal/telemetry"
	"github.com/MarkoPoloResearchLab/lunchfund/pkg/fund"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	testNowUnixUTC = 1760000000
	testOrigin     = "http://localhost:8000"
)

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type mealEnvelope struct {
	Meal fund.MealDetail `json:"meal"`
}

type idEnvelope struct {
	ID int64 `json:"id"`
}

type balanceEnvelope struct {
	Member  string `json:"member"`
	Balance int64  `json:"balance"`
}

type statusEnvelope struct {
	Totals           fund.FundTotals `json:"totals"`
	NegativeBalances []struct {
		Member  string `json:"member"`
		Balance int64  `json:"balance"`
	} `json:"negative_balances"`
}

func startTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lunchfund.db")
	db, err := gorm.Open(sqlite.Open(path+"?_pragma=foreign_keys(1)"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := gormstore.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	registry := prometheus.NewRegistry()
	metrics, err := telemetry.NewMetrics(registry)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	store := gormstore.New(db)
	service, err := fund.NewService(
		store,
		func() int64 { return testNowUnixUTC },
		fund.WithAuditRecorder(store),
		fund.WithOperationLogger(telemetry.NewOperationLogger(zap.NewNop(), metrics)),
	)
	if err != nil {
		t.Fatalf("service: %v", err)
	}

	cfg := Config{AllowedOrigins: []string{testOrigin}, RequestTimeout: 2 * time.Second}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}
	handler := &httpHandler{logger: zap.NewNop(), service: service, cfg: cfg}
	server := httptest.NewServer(setupRouter(cfg, handler, registry))
	t.Cleanup(server.Close)
	return server
}

func execRequest(t *testing.T, server *httptest.Server, method string, path string, body any, expectedStatus int, target any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	request, err := http.NewRequest(method, server.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	request.Header.Set("Content-Type", "application/json")
	response, err := server.Client().Do(request)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer response.Body.Close()
	raw, err := io.ReadAll(response.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if response.StatusCode != expectedStatus {
		t.Fatalf("%s %s: expected status %d, got %d: %s", method, path, expectedStatus, response.StatusCode, raw)
	}
	if target != nil {
		if err := json.Unmarshal(raw, target); err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
	}
}

func registerMembers(t *testing.T, server *httptest.Server, names ...string) {
	t.Helper()
	for _, name := range names {
		execRequest(t, server, http.MethodPost, "/api/members", memberRequest{Name: name}, http.StatusCreated, nil)
	}
}

func TestMealLifecycleOverHTTP(t *testing.T) {
	t.Parallel()
	server := startTestServer(t)
	registerMembers(t, server, "alice", "bob", "carol")

	execRequest(t, server, http.MethodPost, "/api/deposits", depositRequest{Member: "bob", Amount: 10000}, http.StatusCreated, nil)

	var created mealEnvelope
	execRequest(t, server, http.MethodPost, "/api/meals", mealRequest{
		Date:         "2025-03-14",
		EntryMode:    "total",
		Diners:       []string{"carol", "alice", "bob"},
		Payer:        "alice",
		GrandTotal:   10000,
		GuestTotal:   1000,
		Distribution: "equal",
	}, http.StatusCreated, &created)
	if len(created.Meal.Shares) != 3 {
		t.Fatalf("expected three shares, got %+v", created.Meal.Shares)
	}
	if created.Meal.Shares[0].Member.String() != "alice" || created.Meal.Shares[0].TotalAmount != 3000 {
		t.Fatalf("expected alice to take 3000 first, got %+v", created.Meal.Shares[0])
	}

	var aliceBalance balanceEnvelope
	execRequest(t, server, http.MethodGet, "/api/balances/alice", nil, http.StatusOK, &aliceBalance)
	if aliceBalance.Balance != 6000 {
		t.Fatalf("expected alice balance 6000, got %d", aliceBalance.Balance)
	}

	mealPath := "/api/meals/" + strconv.FormatInt(int64(created.Meal.Meal.ID), 10)
	execRequest(t, server, http.MethodPut, mealPath, mealRequest{
		Date:         "2025-03-14",
		Diners:       []string{"alice", "bob"},
		Payer:        "alice",
		GrandTotal:   5000,
		Distribution: "equal",
	}, http.StatusOK, nil)
	execRequest(t, server, http.MethodGet, "/api/balances/alice", nil, http.StatusOK, &aliceBalance)
	if aliceBalance.Balance != 2500 {
		t.Fatalf("expected alice balance 2500 after edit, got %d", aliceBalance.Balance)
	}

	var status statusEnvelope
	execRequest(t, server, http.MethodGet, "/api/status", nil, http.StatusOK, &status)
	if status.Totals.Deposited != 15000 || status.Totals.Consumed != 5000 || status.Totals.Balance != 10000 {
		t.Fatalf("unexpected totals %+v", status.Totals)
	}
	if len(status.NegativeBalances) != 0 {
		t.Fatalf("expected no negative balances, got %+v", status.NegativeBalances)
	}

	execRequest(t, server, http.MethodDelete, mealPath, nil, http.StatusNoContent, nil)
	execRequest(t, server, http.MethodGet, mealPath, nil, http.StatusNotFound, nil)
	execRequest(t, server, http.MethodGet, "/api/balances/alice", nil, http.StatusOK, &aliceBalance)
	if aliceBalance.Balance != 0 {
		t.Fatalf("expected alice balance 0 after delete, got %d", aliceBalance.Balance)
	}
}

func TestErrorMapping(t *testing.T) {
	t.Parallel()
	server := startTestServer(t)
	registerMembers(t, server, "alice", "bob")
	execRequest(t, server, http.MethodPost, "/api/deposits", depositRequest{Member: "alice", Amount: 500}, http.StatusCreated, nil)

	testCases := []struct {
		name           string
		method         string
		path           string
		body           any
		expectedStatus int
		expectedCode   string
	}{
		{name: "no diners", method: http.MethodPost, path: "/api/meals", body: mealRequest{GrandTotal: 100}, expectedStatus: http.StatusBadRequest, expectedCode: errorCodeValidation},
		{name: "unknown mode", method: http.MethodPost, path: "/api/meals", body: mealRequest{EntryMode: "itemized", Diners: []string{"alice"}}, expectedStatus: http.StatusBadRequest, expectedCode: errorCodeValidation},
		{name: "duplicate member", method: http.MethodPost, path: "/api/members", body: memberRequest{Name: "alice"}, expectedStatus: http.StatusConflict, expectedCode: errorCodeExists},
		{name: "non-zero balance", method: http.MethodDelete, path: "/api/members/alice", expectedStatus: http.StatusConflict, expectedCode: errorCodeNonZero},
		{name: "unknown member balance", method: http.MethodGet, path: "/api/balances/zoe", expectedStatus: http.StatusNotFound, expectedCode: errorCodeNotFound},
		{name: "missing deposit", method: http.MethodDelete, path: "/api/deposits/99", expectedStatus: http.StatusNotFound, expectedCode: errorCodeNotFound},
		{name: "bad id", method: http.MethodGet, path: "/api/meals/abc", expectedStatus: http.StatusBadRequest, expectedCode: errorCodeInvalid},
		{name: "bad limit", method: http.MethodGet, path: "/api/deposits?limit=-1", expectedStatus: http.StatusBadRequest, expectedCode: errorCodeInvalid},
		{name: "zero deposit", method: http.MethodPost, path: "/api/deposits", body: depositRequest{Member: "alice"}, expectedStatus: http.StatusBadRequest, expectedCode: errorCodeValidation},
	}
	for _, testCase := range testCases {
		var envelope errorEnvelope
		execRequest(t, server, testCase.method, testCase.path, testCase.body, testCase.expectedStatus, &envelope)
		if envelope.Error.Code != testCase.expectedCode {
			t.Fatalf("%s: expected code %s, got %+v", testCase.name, testCase.expectedCode, envelope)
		}
	}
}

func TestSettlementDepositCannotBeEditedOverHTTP(t *testing.T) {
	t.Parallel()
	server := startTestServer(t)
	registerMembers(t, server, "alice", "bob")
	execRequest(t, server, http.MethodPost, "/api/meals", mealRequest{
		Diners:     []string{"alice", "bob"},
		Payer:      "bob",
		GrandTotal: 4000,
	}, http.StatusCreated, nil)

	var listing struct {
		Deposits []fund.Deposit `json:"deposits"`
	}
	execRequest(t, server, http.MethodGet, "/api/deposits", nil, http.StatusOK, &listing)
	if len(listing.Deposits) != 1 || listing.Deposits[0].Kind != fund.DepositKindAutoSettlement {
		t.Fatalf("expected one settlement deposit, got %+v", listing.Deposits)
	}
	settlementPath := "/api/deposits/" + strconv.FormatInt(int64(listing.Deposits[0].ID), 10)
	execRequest(t, server, http.MethodDelete, settlementPath, nil, http.StatusBadRequest, nil)
	execRequest(t, server, http.MethodPut, settlementPath, depositRequest{Member: "bob", Amount: 1}, http.StatusBadRequest, nil)
}

func TestNoticesAndExport(t *testing.T) {
	t.Parallel()
	server := startTestServer(t)
	registerMembers(t, server, "alice")

	var posted idEnvelope
	execRequest(t, server, http.MethodPost, "/api/notices", noticeRequest{Content: "top up before Friday"}, http.StatusCreated, &posted)
	execRequest(t, server, http.MethodPost, "/api/notices", noticeRequest{Content: "   "}, http.StatusBadRequest, nil)

	var notices struct {
		Notices []fund.Notice `json:"notices"`
	}
	execRequest(t, server, http.MethodGet, "/api/notices?limit=5", nil, http.StatusOK, &notices)
	if len(notices.Notices) != 1 || notices.Notices[0].Date != "2025-10-09" {
		t.Fatalf("unexpected notices %+v", notices.Notices)
	}

	var snapshot struct {
		Members []string          `json:"members"`
		Notices []fund.Notice     `json:"notices"`
		Audit   []json.RawMessage `json:"audit"`
	}
	execRequest(t, server, http.MethodGet, "/api/export", nil, http.StatusOK, &snapshot)
	if len(snapshot.Members) != 1 || len(snapshot.Notices) != 1 || len(snapshot.Audit) != 2 {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}

	execRequest(t, server, http.MethodDelete, "/api/notices/"+strconv.FormatInt(posted.ID, 10), nil, http.StatusNoContent, nil)
	execRequest(t, server, http.MethodDelete, "/api/notices/"+strconv.FormatInt(posted.ID, 10), nil, http.StatusNotFound, nil)
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()
	server := startTestServer(t)
	execRequest(t, server, http.MethodGet, "/healthz", nil, http.StatusOK, nil)
	registerMembers(t, server, "alice")

	response, err := server.Client().Get(server.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer response.Body.Close()
	raw, err := io.ReadAll(response.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(string(raw), `lunchfund_operations_total{operation="register_member",status="ok"} 1`) {
		t.Fatalf("expected operation counter in metrics, got %s", raw)
	}
}
