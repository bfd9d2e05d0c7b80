package wire

import (
	"reflect"
	"testing"
)

func TestCode(t *testing.T) {
	tests := []struct {
		code    Code
		dotted  string
		name    string
		success bool
	}{
		{CodeCreated, "2.01", "CREATED", true},
		{CodeChanged, "2.04", "CHANGED", true},
		{CodeContent, "2.05", "CONTENT", true},
		{CodeBadRequest, "4.00", "BAD_REQUEST", false},
		{CodeNotFound, "4.04", "NOT_FOUND", false},
		{CodeMethodNotAllowed, "4.05", "METHOD_NOT_ALLOWED", false},
		{CodeInternalServerError, "5.00", "INTERNAL_SERVER_ERROR", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.code.Dotted(); got != tt.dotted {
				t.Errorf("Dotted = %q, want %q", got, tt.dotted)
			}
			if got := tt.code.String(); got != tt.name {
				t.Errorf("String = %q, want %q", got, tt.name)
			}
			if got := tt.code.IsSuccess(); got != tt.success {
				t.Errorf("IsSuccess = %v, want %v", got, tt.success)
			}
			if got := tt.code.IsError(); got == tt.success {
				t.Errorf("IsError = %v, want %v", got, !tt.success)
			}
		})
	}
}

func TestRequestQuery(t *testing.T) {
	req := NewRequest(MethodPost, "/rd").
		WithQuery("ep", "node-1").
		WithQuery("lt", "300")
	req.Query = append(req.Query, "Q")

	if v, ok := req.QueryValue("ep"); !ok || v != "node-1" {
		t.Errorf("QueryValue(ep) = %q, %v", v, ok)
	}
	if v, ok := req.QueryValue("Q"); !ok || v != "" {
		t.Errorf("QueryValue(Q) = %q, %v; want empty, true", v, ok)
	}
	if _, ok := req.QueryValue("b"); ok {
		t.Error("QueryValue(b) should be absent")
	}
	want := map[string]string{"ep": "node-1", "lt": "300", "Q": ""}
	if got := req.QueryMap(); !reflect.DeepEqual(got, want) {
		t.Errorf("QueryMap = %v, want %v", got, want)
	}
	if got := req.URI(); got != "/rd?ep=node-1&lt=300&Q" {
		t.Errorf("URI = %q", got)
	}
}

func TestRequestDefaults(t *testing.T) {
	req := NewRequest(MethodGet, "/3/0")
	if req.ContentFormat.IsSet() || req.Accept.IsSet() {
		t.Error("new request should have no content format or accept")
	}
	if req.Observe != nil {
		t.Error("new request should have no observe option")
	}
	req.WithObserve(ObserveRegister)
	if req.Observe == nil || *req.Observe != 0 {
		t.Errorf("Observe = %v, want 0", req.Observe)
	}
	if NewRequest(MethodEmpty, "").IsEmpty() != true {
		t.Error("empty method should be an empty message")
	}
}

func TestResponseLocationPath(t *testing.T) {
	resp := NewResponse(CodeCreated)
	if got := resp.LocationPath(); got != "" {
		t.Errorf("LocationPath = %q, want empty", got)
	}
	resp.Location = []string{"rd", "5a3f"}
	if got := resp.LocationPath(); got != "/rd/5a3f" {
		t.Errorf("LocationPath = %q, want /rd/5a3f", got)
	}
	if got := SplitPath("/rd//5a3f/"); !reflect.DeepEqual(got, []string{"rd", "5a3f"}) {
		t.Errorf("SplitPath = %v", got)
	}
}

func TestFormatString(t *testing.T) {
	if FormatSenMLJSON.String() != "application/senml+json" {
		t.Errorf("SenMLJSON = %q", FormatSenMLJSON.String())
	}
	if Format(9999).String() != "format/9999" {
		t.Errorf("unknown = %q", Format(9999).String())
	}
	if FormatNone.IsSet() {
		t.Error("FormatNone.IsSet() = true")
	}
}
