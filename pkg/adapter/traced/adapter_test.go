package traced_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	records "github.com/goliatone/go-records"
	"github.com/goliatone/go-records/pkg/adapter/memory"
	"github.com/goliatone/go-records/pkg/adapter/traced"
)

func setup(t *testing.T) (*records.RecordType, *tracetest.InMemoryExporter, *sdkmetric.ManualReader) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	wrapped, err := traced.Wrap(memory.New(), traced.WithTracerProvider(tp), traced.WithMeterProvider(mp))
	if err != nil {
		t.Fatalf("Wrap() failed: %v", err)
	}
	client, err := records.NewClient(records.WithAdapter(wrapped))
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	rt, err := client.Define("models.Event", []records.FieldDescriptor{records.Attr("name", "string")})
	if err != nil {
		t.Fatalf("define: %v", err)
	}
	return rt, exporter, reader
}

func TestSpansPerCall(t *testing.T) {
	rt, exporter, _ := setup(t)
	ctx := context.Background()

	rec := rt.New()
	_ = rec.Set("name", "launch")
	if err := rec.SaveRecord(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := rt.FindByKey(ctx, "missing", nil); !errors.Is(err, records.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Name != "records.save" || spans[0].Status.Code != codes.Ok {
		t.Fatalf("unexpected save span %q %v", spans[0].Name, spans[0].Status)
	}
	if spans[1].Name != "records.find_by_key" || spans[1].Status.Code != codes.Error {
		t.Fatalf("unexpected find span %q %v", spans[1].Name, spans[1].Status)
	}
	found := false
	for _, attr := range spans[1].Attributes {
		if string(attr.Key) == "records.key" && attr.Value.AsString() == "missing" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected records.key attribute on find span")
	}
}

func TestMetricsCountCallsAndErrors(t *testing.T) {
	rt, _, reader := setup(t)
	ctx := context.Background()

	_, _ = rt.FindAll(ctx)
	_, _ = rt.FindByKey(ctx, "missing", nil)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	totals := map[string]int64{}
	histograms := 0
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, point := range data.DataPoints {
					totals[m.Name] += point.Value
				}
			case metricdata.Histogram[float64]:
				for _, point := range data.DataPoints {
					histograms += int(point.Count)
				}
			}
		}
	}
	if totals["records.adapter.calls"] != 2 {
		t.Fatalf("expected 2 calls, got %d", totals["records.adapter.calls"])
	}
	if totals["records.adapter.errors"] != 1 {
		t.Fatalf("expected 1 error, got %d", totals["records.adapter.errors"])
	}
	if histograms != 2 {
		t.Fatalf("expected 2 duration samples, got %d", histograms)
	}
}
