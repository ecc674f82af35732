package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/caldew/loom/internal/catalog"
)

var ctx = context.Background()

type mockCatalog struct {
	mu    sync.Mutex
	puts  []catalog.Record
	putFn func(ctx context.Context, group string, rec catalog.Record) error
}

func (m *mockCatalog) PutRecord(ctx context.Context, group string, rec catalog.Record) error {
	if m.putFn != nil {
		if err := m.putFn(ctx, group, rec); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts = append(m.puts, rec)
	return nil
}

func transactionsGroup() *catalog.FeatureGroup {
	return &catalog.FeatureGroup{
		Name: "transactions",
		Schema: catalog.Schema{
			RecordIdentifier: "TransactionID",
			EventTimeFeature: "EventTime",
			Features: []catalog.FeatureDefinition{
				{Name: "TransactionID", Type: catalog.TypeString},
				{Name: "EventTime", Type: catalog.TypeString},
				{Name: "Amount", Type: catalog.TypeFractional},
				{Name: "isFraud", Type: catalog.TypeIntegral},
			},
		},
		Status: catalog.GroupCreated,
	}
}

func TestIngestCSV(t *testing.T) {
	cat := &mockCatalog{}
	ing := &Ingestor{Catalog: cat}

	csvData := "TransactionID,Amount,isFraud\n" +
		"tx-1,42.50,0\n" +
		"tx-2,9.99,1\n" +
		"tx-3,100.00,0\n"

	res, err := ing.IngestCSV(ctx, transactionsGroup(), strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("IngestCSV: %v", err)
	}
	if res.Records != 3 {
		t.Errorf("Records = %d, want 3", res.Records)
	}
	if len(cat.puts) != 3 {
		t.Fatalf("put %d records, want 3", len(cat.puts))
	}

	for _, rec := range cat.puts {
		if _, ok := rec.Get("TransactionID"); !ok {
			t.Errorf("record %v missing TransactionID", rec)
		}
	}
}

func TestIngestCSVStampsEventTime(t *testing.T) {
	cat := &mockCatalog{}
	ing := &Ingestor{Catalog: cat}

	csvData := "TransactionID,Amount\ntx-1,42.50\ntx-2,9.99\n"
	if _, err := ing.IngestCSV(ctx, transactionsGroup(), strings.NewReader(csvData)); err != nil {
		t.Fatalf("IngestCSV: %v", err)
	}

	stamps := make(map[string]bool)
	for _, rec := range cat.puts {
		v, ok := rec.Get("EventTime")
		if !ok {
			t.Fatalf("record %v has no event time", rec)
		}
		if _, err := time.Parse(time.RFC3339, v); err != nil {
			t.Errorf("event time %q is not RFC3339: %v", v, err)
		}
		stamps[v] = true
	}
	if len(stamps) != 1 {
		t.Errorf("records of one run carry %d distinct stamps, want 1", len(stamps))
	}
}

func TestIngestCSVKeepsProvidedEventTime(t *testing.T) {
	cat := &mockCatalog{}
	ing := &Ingestor{Catalog: cat}

	csvData := "TransactionID,EventTime,Amount\ntx-1,2026-01-02T03:04:05Z,42.50\n"
	if _, err := ing.IngestCSV(ctx, transactionsGroup(), strings.NewReader(csvData)); err != nil {
		t.Fatalf("IngestCSV: %v", err)
	}

	if len(cat.puts) != 1 {
		t.Fatalf("put %d records, want 1", len(cat.puts))
	}
	if v, _ := cat.puts[0].Get("EventTime"); v != "2026-01-02T03:04:05Z" {
		t.Errorf("EventTime = %q, want the csv value", v)
	}
}

func TestIngestCSVOmitsEmptyCells(t *testing.T) {
	cat := &mockCatalog{}
	ing := &Ingestor{Catalog: cat}

	csvData := "TransactionID,Amount,isFraud\ntx-1,,0\n"
	if _, err := ing.IngestCSV(ctx, transactionsGroup(), strings.NewReader(csvData)); err != nil {
		t.Fatalf("IngestCSV: %v", err)
	}

	if len(cat.puts) != 1 {
		t.Fatalf("put %d records, want 1", len(cat.puts))
	}
	if _, ok := cat.puts[0].Get("Amount"); ok {
		t.Error("empty Amount cell became a feature value")
	}
	if v, ok := cat.puts[0].Get("isFraud"); !ok || v != "0" {
		t.Errorf("isFraud = %q, %v", v, ok)
	}
}

func TestIngestCSVRejectsUnknownColumn(t *testing.T) {
	ing := &Ingestor{Catalog: &mockCatalog{}}

	csvData := "TransactionID,Bogus\ntx-1,x\n"
	_, err := ing.IngestCSV(ctx, transactionsGroup(), strings.NewReader(csvData))
	if err == nil || !strings.Contains(err.Error(), "Bogus") {
		t.Errorf("error = %v, want it to name the unknown column", err)
	}
}

func TestIngestCSVRequiresIdentifierColumn(t *testing.T) {
	ing := &Ingestor{Catalog: &mockCatalog{}}

	csvData := "Amount,isFraud\n42.50,0\n"
	_, err := ing.IngestCSV(ctx, transactionsGroup(), strings.NewReader(csvData))
	if err == nil || !strings.Contains(err.Error(), "TransactionID") {
		t.Errorf("error = %v, want it to name the identifier column", err)
	}
}

func TestIngestCSVEmptyInput(t *testing.T) {
	ing := &Ingestor{Catalog: &mockCatalog{}}

	if _, err := ing.IngestCSV(ctx, transactionsGroup(), strings.NewReader("")); err == nil {
		t.Error("IngestCSV of empty input succeeded")
	}
}

func TestIngestCSVPropagatesPutFailure(t *testing.T) {
	putErr := errors.New("online store unavailable")
	cat := &mockCatalog{
		putFn: func(_ context.Context, _ string, rec catalog.Record) error {
			if id, _ := rec.Get("TransactionID"); id == "tx-2" {
				return putErr
			}
			return nil
		},
	}
	ing := &Ingestor{Catalog: cat, Workers: 1}

	csvData := "TransactionID,Amount\ntx-1,1\ntx-2,2\ntx-3,3\n"
	_, err := ing.IngestCSV(ctx, transactionsGroup(), strings.NewReader(csvData))
	if !errors.Is(err, putErr) {
		t.Errorf("error = %v, want wrapped %v", err, putErr)
	}
}

func TestIngestCSVBoundsConcurrency(t *testing.T) {
	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0

	cat := &mockCatalog{
		putFn: func(_ context.Context, _ string, _ catalog.Record) error {
			mu.Lock()
			inFlight++
			if inFlight > maxInFlight {
				maxInFlight = inFlight
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inFlight--
			mu.Unlock()
			return nil
		},
	}
	ing := &Ingestor{Catalog: cat, Workers: 2}

	var sb strings.Builder
	sb.WriteString("TransactionID,Amount\n")
	for i := 0; i < 20; i++ {
		sb.WriteString("tx-")
		sb.WriteByte(byte('a' + i))
		sb.WriteString(",1\n")
	}

	if _, err := ing.IngestCSV(ctx, transactionsGroup(), strings.NewReader(sb.String())); err != nil {
		t.Fatalf("IngestCSV: %v", err)
	}
	if maxInFlight > 2 {
		t.Errorf("max in-flight puts = %d, want at most 2", maxInFlight)
	}
}
