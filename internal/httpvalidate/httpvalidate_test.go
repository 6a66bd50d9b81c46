package httpvalidate

import (
	"testing"

	"github.com/arrowcurve/loadctl/pkg/spec"
)

func TestContains(t *testing.T) {
	resp := &spec.Response{Body: []byte(`{"status":"ok"}`)}
	if !(Contains{Value: "status"}).Validate(resp, nil) {
		t.Error("expected substring match to pass")
	}
	if (Contains{Value: "missing"}).Validate(resp, nil) {
		t.Error("expected absent substring to fail")
	}
}

func TestRegex(t *testing.T) {
	re, err := NewRegex(`^\{.*\}$`)
	if err != nil {
		t.Fatalf("NewRegex: %v", err)
	}
	if !re.Validate(&spec.Response{Body: []byte(`{"a":1}`)}, nil) {
		t.Error("expected JSON-object-shaped body to match")
	}
	if re.Validate(&spec.Response{Body: []byte(`not json`)}, nil) {
		t.Error("expected plain text to not match")
	}
}

func TestRegexRejectsInvalidPattern(t *testing.T) {
	if _, err := NewRegex("("); err == nil {
		t.Fatal("expected an error for an unbalanced regex")
	}
}

func TestJSONPathExistence(t *testing.T) {
	resp := &spec.Response{Body: []byte(`{"user":{"id":42}}`)}
	if !(JSONPath{Path: "user.id"}).Validate(resp, nil) {
		t.Error("expected path to exist")
	}
	if (JSONPath{Path: "user.missing"}).Validate(resp, nil) {
		t.Error("expected missing path to fail")
	}
}

func TestJSONPathValueComparison(t *testing.T) {
	resp := &spec.Response{Body: []byte(`{"status":"ready"}`)}
	if !(JSONPath{Path: "status", Value: "ready"}).Validate(resp, nil) {
		t.Error("expected matching value to pass")
	}
	if (JSONPath{Path: "status", Value: "busy"}).Validate(resp, nil) {
		t.Error("expected mismatched value to fail")
	}
}
