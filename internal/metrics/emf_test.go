package metrics

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"
	"time"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := SetOutput(&buf)
	t.Cleanup(func() { SetOutput(prev) })
	return &buf
}

func TestNew_AutoDimension(t *testing.T) {
	initOnce.Do(func() {})
	functionName = "moodmatch-api"
	defer func() { functionName = "" }()

	r := New(Namespace)
	if r.namespace != Namespace {
		t.Errorf("expected namespace %s, got %s", Namespace, r.namespace)
	}
	if r.dimensions["FunctionName"] != "moodmatch-api" {
		t.Errorf("expected FunctionName dimension, got %q", r.dimensions["FunctionName"])
	}
}

func TestRecorder_FlushOutput(t *testing.T) {
	initOnce.Do(func() {})
	functionName = ""
	buf := capture(t)

	New(Namespace).
		Dimension("Operation", "uploadImage").
		Dimension("Result", "ok").
		Metric("OperationLatencyMs", 812, UnitMilliseconds).
		Count("OperationCount").
		Property("generation", 3).
		Flush()

	var doc map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("EMF output is not JSON: %v\n%s", err, buf.String())
	}

	awsMap, ok := doc["_aws"].(map[string]interface{})
	if !ok {
		t.Fatal("missing _aws directive")
	}
	cw := awsMap["CloudWatchMetrics"].([]interface{})[0].(map[string]interface{})
	if cw["Namespace"] != Namespace {
		t.Errorf("namespace = %v", cw["Namespace"])
	}
	dims := cw["Dimensions"].([]interface{})[0].([]interface{})
	if len(dims) != 2 || dims[0] != "Operation" || dims[1] != "Result" {
		t.Errorf("dimensions = %v, want sorted [Operation Result]", dims)
	}
	if doc["Operation"] != "uploadImage" {
		t.Errorf("Operation = %v", doc["Operation"])
	}
	if doc["OperationLatencyMs"] != float64(812) {
		t.Errorf("OperationLatencyMs = %v", doc["OperationLatencyMs"])
	}
	if doc["OperationCount"] != float64(1) {
		t.Errorf("OperationCount = %v", doc["OperationCount"])
	}
	if doc["generation"] != float64(3) {
		t.Errorf("generation = %v", doc["generation"])
	}
}

func TestRecorder_FlushEmpty(t *testing.T) {
	buf := capture(t)
	New("Test").Dimension("Operation", "noop").Flush()
	if buf.Len() != 0 {
		t.Errorf("expected no output for empty recorder, got: %s", buf.String())
	}
}

func TestRecorder_Since(t *testing.T) {
	rec := New("Test").Since("LatencyMs", time.Now().Add(-50*time.Millisecond))
	if rec.values["LatencyMs"] < 50 {
		t.Errorf("LatencyMs = %v, want >= 50", rec.values["LatencyMs"])
	}
	if rec.metrics["LatencyMs"].Unit != UnitMilliseconds {
		t.Errorf("unit = %s", rec.metrics["LatencyMs"].Unit)
	}
}

func TestSetOutputReturnsPrevious(t *testing.T) {
	first := SetOutput(io.Discard)
	second := SetOutput(first)
	if second != io.Discard {
		t.Error("SetOutput did not return the previously installed writer")
	}
}
