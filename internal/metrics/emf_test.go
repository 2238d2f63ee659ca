package metrics

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"
)

func TestNew_ServiceDimension(t *testing.T) {
	initOnce.Do(func() {})
	serviceName = "actions-gateway"

	r := New("SlackActionsGateway")
	if r.namespace != "SlackActionsGateway" {
		t.Errorf("expected namespace SlackActionsGateway, got %s", r.namespace)
	}
	if r.dimensions["Service"] != "actions-gateway" {
		t.Errorf("expected Service dimension actions-gateway, got %s", r.dimensions["Service"])
	}
}

func TestRecorder_FlushOutput(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)

	initOnce.Do(func() {})
	serviceName = "" // Clear for test isolation

	rec := New("SlackActionsGateway")
	rec.Dimension("Endpoint", "/slack/actions")
	rec.Metric("RequestLatencyMs", 42.5, UnitMilliseconds)
	rec.Count("RequestCount")
	rec.Property("statusCode", 200)
	rec.Flush()

	var doc map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("failed to parse EMF output as JSON: %v\nOutput: %s", err, buf.String())
	}

	awsDir, ok := doc["_aws"]
	if !ok {
		t.Fatal("missing _aws directive in EMF output")
	}
	awsMap, ok := awsDir.(map[string]interface{})
	if !ok {
		t.Fatal("_aws directive is not a map")
	}

	if _, ok := awsMap["Timestamp"]; !ok {
		t.Error("missing Timestamp in _aws directive")
	}

	cwMetrics, ok := awsMap["CloudWatchMetrics"]
	if !ok {
		t.Fatal("missing CloudWatchMetrics in _aws directive")
	}
	cwArr, ok := cwMetrics.([]interface{})
	if !ok || len(cwArr) == 0 {
		t.Fatal("CloudWatchMetrics should be a non-empty array")
	}

	cw := cwArr[0].(map[string]interface{})
	if cw["Namespace"] != "SlackActionsGateway" {
		t.Errorf("expected namespace SlackActionsGateway, got %v", cw["Namespace"])
	}

	if doc["Endpoint"] != "/slack/actions" {
		t.Errorf("expected Endpoint dimension value, got %v", doc["Endpoint"])
	}
	if doc["RequestLatencyMs"] != 42.5 {
		t.Errorf("expected RequestLatencyMs 42.5, got %v", doc["RequestLatencyMs"])
	}
	if doc["statusCode"] != float64(200) {
		t.Errorf("expected statusCode property 200, got %v", doc["statusCode"])
	}
}

func TestRecorder_EmptyFlush(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)

	New("SlackActionsGateway").Property("onlyProperty", true).Flush()

	if buf.Len() != 0 {
		t.Errorf("expected no output for recorder with no metrics, got %s", buf.String())
	}
}
