package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/caldew/loom/internal/catalog"
	"github.com/caldew/loom/internal/config"
	"github.com/caldew/loom/internal/foundry"
	"github.com/caldew/loom/internal/platform"
	"github.com/caldew/loom/internal/readiness"
	"github.com/caldew/loom/internal/warehouse"
	"github.com/caldew/loom/internal/workflow"
	"github.com/caldew/loom/internal/workspace"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testPlatform struct {
	server   *httptest.Server
	requests []recordedRequest
}

// newTestPlatform runs a fake platform answering from a "METHOD /path" map.
func newTestPlatform(t *testing.T, responses map[string]string) *testPlatform {
	t.Helper()
	tp := &testPlatform{}

	tp.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		tp.requests = append(tp.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"code":"not_found","message":"not found"}}`))
	}))

	t.Cleanup(tp.server.Close)
	return tp
}

// stubApp points newApp at the fake platform with an in-memory ledger and a
// non-sleeping waiter. The previous constructor is restored via t.Cleanup.
func stubApp(t *testing.T, tp *testPlatform) *app {
	t.Helper()

	store, err := workspace.Open(":memory:")
	if err != nil {
		t.Fatalf("opening workspace: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	api := platform.New(tp.server.URL, "test-key")
	cat := catalog.NewClient(api)
	wh := warehouse.NewClient(api)
	fnd := foundry.NewClient(api)

	waiter := readiness.New(0, 0)
	waiter.Sleeper = noSleep{}

	a := &app{
		cfg:       config.Default(),
		api:       api,
		catalog:   cat,
		warehouse: wh,
		foundry:   fnd,
		store:     store,
		runner: &workflow.Runner{
			Catalog:   cat,
			Warehouse: wh,
			Foundry:   fnd,
			Ledger:    store,
			Waiter:    waiter,
		},
	}

	old := newApp
	newApp = func() (*app, error) { return a, nil }
	t.Cleanup(func() { newApp = old })
	return a
}

type noSleep struct{}

func (noSleep) Sleep(context.Context, time.Duration) error { return nil }

func runCommand(t *testing.T, args ...string) error {
	t.Helper()
	defer rootCmd.SetArgs(nil)
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func TestGroupCreate_InfersSchemaAndWaits(t *testing.T) {
	tp := newTestPlatform(t, map[string]string{
		"POST /v1/feature-groups": `{"name":"transactions","status":"Creating","schema":{"record_identifier":"txn_id","event_time_feature":"event_time","features":[{"name":"txn_id","type":"String"}]}}`,
		"GET /v1/feature-groups/transactions": `{"name":"transactions","status":"Created","offline_table":"transactions_offline","schema":{"record_identifier":"txn_id","event_time_feature":"event_time","features":[{"name":"txn_id","type":"String"}]}}`,
	})
	stubApp(t, tp)

	dir := t.TempDir()
	dataPath := filepath.Join(dir, "txns.csv")
	csv := "txn_id,amount,is_fraud\nt-1,12.50,0\nt-2,3,1\n"
	if err := os.WriteFile(dataPath, []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}

	err := runCommand(t, "group", "create", "transactions", "--data", dataPath, "--id", "txn_id")
	if err != nil {
		t.Fatalf("group create: %v", err)
	}

	var create *recordedRequest
	for i := range tp.requests {
		if tp.requests[i].Method == "POST" && tp.requests[i].Path == "/v1/feature-groups" {
			create = &tp.requests[i]
		}
	}
	if create == nil {
		t.Fatal("no create request reached the platform")
	}
	if create.Auth != "Bearer test-key" {
		t.Errorf("auth = %q, want Bearer test-key", create.Auth)
	}
	for _, want := range []string{
		`"record_identifier":"txn_id"`,
		`{"name":"amount","type":"Fractional"}`,
		`{"name":"is_fraud","type":"Integral"}`,
		`{"name":"event_time","type":"String"}`,
	} {
		if !strings.Contains(create.Body, want) {
			t.Errorf("create body missing %s\nbody: %s", want, create.Body)
		}
	}
}

func TestGroupCreate_RequiresDataOrSchema(t *testing.T) {
	// Flag values persist across Execute calls; reset them explicitly.
	err := runCommand(t, "group", "create", "orphan", "--data", "", "--schema", "")
	if err == nil {
		t.Fatal("expected error without --data or --schema")
	}
	if !strings.Contains(err.Error(), "--data or --schema") {
		t.Errorf("error = %q, want it to name the missing flags", err.Error())
	}
}

func TestGroupCreate_RecordsLedgerRow(t *testing.T) {
	tp := newTestPlatform(t, map[string]string{
		"POST /v1/feature-groups":         `{"name":"identity","status":"Creating"}`,
		"GET /v1/feature-groups/identity": `{"name":"identity","status":"Created","offline_table":"identity_offline"}`,
	})
	a := stubApp(t, tp)

	dir := t.TempDir()
	dataPath := filepath.Join(dir, "identity.csv")
	if err := os.WriteFile(dataPath, []byte("customer_id,email_score\nc-1,0.9\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := runCommand(t, "group", "create", "identity", "--data", dataPath, "--id", "customer_id"); err != nil {
		t.Fatalf("group create: %v", err)
	}

	res, err := a.store.GetResource(workspace.KindFeatureGroup, "identity")
	if err != nil {
		t.Fatalf("ledger row missing: %v", err)
	}
	if res.Status != string(catalog.GroupCreated) {
		t.Errorf("ledger status = %q, want %q", res.Status, catalog.GroupCreated)
	}
}

func TestRecordPut_RejectsMalformedPairs(t *testing.T) {
	tp := newTestPlatform(t, nil)
	stubApp(t, tp)

	err := runCommand(t, "record", "put", "transactions", "not-a-pair")
	if err == nil {
		t.Fatal("expected error for a malformed field=value pair")
	}
	if !strings.Contains(err.Error(), "field=value") {
		t.Errorf("error = %q, want it to mention field=value", err.Error())
	}
	if len(tp.requests) != 0 {
		t.Errorf("expected no platform requests, got %d", len(tp.requests))
	}
}

func TestRecordPut_SendsOrderedValues(t *testing.T) {
	tp := newTestPlatform(t, map[string]string{
		"PUT /v1/feature-groups/transactions/records": `{}`,
	})
	stubApp(t, tp)

	err := runCommand(t, "record", "put", "transactions", "txn_id=t-9", "amount=42")
	if err != nil {
		t.Fatalf("record put: %v", err)
	}

	if len(tp.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(tp.requests))
	}
	body := tp.requests[0].Body
	idPos := strings.Index(body, `"txn_id"`)
	amountPos := strings.Index(body, `"amount"`)
	if idPos < 0 || amountPos < 0 || idPos > amountPos {
		t.Errorf("record values out of order or missing: %s", body)
	}
}

func TestTeardown_RequiresConfirmation(t *testing.T) {
	tp := newTestPlatform(t, nil)
	stubApp(t, tp)

	if err := runCommand(t, "teardown"); err != nil {
		t.Fatalf("teardown without --yes should be a no-op, got %v", err)
	}
	if len(tp.requests) != 0 {
		t.Errorf("expected no platform requests without --yes, got %d", len(tp.requests))
	}
}

func TestTeardown_DeletesLedgeredResources(t *testing.T) {
	tp := newTestPlatform(t, map[string]string{
		"DELETE /v1/endpoints/fraud": `{}`,
	})
	a := stubApp(t, tp)

	if err := a.store.SaveResource(workspace.Resource{
		Kind: workspace.KindEndpoint, Name: "fraud", Status: "InService",
	}); err != nil {
		t.Fatal(err)
	}

	if err := runCommand(t, "teardown", "--yes"); err != nil {
		t.Fatalf("teardown: %v", err)
	}

	if _, err := a.store.GetResource(workspace.KindEndpoint, "fraud"); err == nil {
		t.Error("endpoint ledger row should be gone after teardown")
	}
	found := false
	for _, r := range tp.requests {
		if r.Method == "DELETE" && r.Path == "/v1/endpoints/fraud" {
			found = true
		}
	}
	if !found {
		t.Error("teardown never deleted the endpoint remotely")
	}
}

func TestWriteResultSet_CSV(t *testing.T) {
	rs := &warehouse.ResultSet{
		Columns: []string{"is_fraud", "amount"},
		Rows:    [][]string{{"1", "12.50"}, {"0", "3"}},
	}

	var buf bytes.Buffer
	if err := writeResultSet(&buf, rs, true); err != nil {
		t.Fatalf("writeResultSet: %v", err)
	}

	want := "is_fraud,amount\n1,12.50\n0,3\n"
	if buf.String() != want {
		t.Errorf("csv output = %q, want %q", buf.String(), want)
	}
}

func TestPrintStatus_AlignsValueColumn(t *testing.T) {
	oldW, oldColor := feedbackW, noColor
	defer func() { feedbackW, noColor = oldW, oldColor }()

	var buf bytes.Buffer
	feedbackW = &buf
	noColor = true

	printStatus("Platform", "up")
	printStatus("Feature groups", "2")

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	up := strings.Index(lines[0], "up")
	two := strings.Index(lines[1], "2")
	if up < 0 || two < 0 || up != two {
		t.Errorf("value columns not aligned: %q vs %q", lines[0], lines[1])
	}
}

func TestPrintFeedback_Prefixes(t *testing.T) {
	oldW, oldColor := feedbackW, noColor
	defer func() { feedbackW, noColor = oldW, oldColor }()

	var buf bytes.Buffer
	feedbackW = &buf
	noColor = true

	printSuccess("done")
	printError("broke")
	printWarning("careful")
	printStep("working")

	want := "✓ done\n✗ broke\n⚠ careful\n→ working\n"
	if buf.String() != want {
		t.Errorf("feedback = %q, want %q", buf.String(), want)
	}
}

func TestColorize(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	if got := colorize(ansiGreen, "ok"); got != "ok" {
		t.Errorf("colorize with noColor=true should strip ANSI codes, got %q", got)
	}

	noColor = false
	if got := colorize(ansiGreen, "ok"); !strings.Contains(got, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", got)
	}
}
