package log

import (
	"testing"

	"github.com/lwm2m-node/lwm2m-go/pkg/wire"
)

func TestEnumStrings(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"DirectionIn", DirectionIn.String(), "IN"},
		{"DirectionOut", DirectionOut.String(), "OUT"},
		{"Direction(9)", Direction(9).String(), "UNKNOWN"},
		{"LayerTransport", LayerTransport.String(), "TRANSPORT"},
		{"LayerWire", LayerWire.String(), "WIRE"},
		{"LayerService", LayerService.String(), "SERVICE"},
		{"CategoryMessage", CategoryMessage.String(), "MESSAGE"},
		{"CategoryControl", CategoryControl.String(), "CONTROL"},
		{"CategoryState", CategoryState.String(), "STATE"},
		{"CategoryError", CategoryError.String(), "ERROR"},
		{"MessageTypeNotification", MessageTypeNotification.String(), "NOTIFICATION"},
		{"StateEntityRegistration", StateEntityRegistration.String(), "REGISTRATION"},
		{"StateEntityLink", StateEntityLink.String(), "LINK"},
		{"StateEntityObservation", StateEntityObservation.String(), "OBSERVATION"},
		{"ControlMsgPing", ControlMsgPing.String(), "PING"},
		{"ControlMsgClose", ControlMsgClose.String(), "CLOSE"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s.String() = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestCapturePayload(t *testing.T) {
	if got := CapturePayload(nil); got != nil {
		t.Errorf("CapturePayload(nil) = %v, want nil", got)
	}

	big := make([]byte, MaxPayloadCapture+10)
	if got := CapturePayload(big); len(got) != MaxPayloadCapture {
		t.Errorf("len(CapturePayload(big)) = %d, want %d", len(got), MaxPayloadCapture)
	}

	src := []byte("21.5")
	got := CapturePayload(src)
	src[0] = 'X'
	if string(got) != "21.5" {
		t.Errorf("CapturePayload must copy, got %q", got)
	}
}

func TestRequestMessage(t *testing.T) {
	req := wire.NewRequest(wire.MethodPut, "/3303/0/5700").
		WithQuery("pmin", "5").
		WithPayload(wire.FormatTextPlain, []byte("22"))
	req.Token = []byte{0xAB}

	m := RequestMessage(req)
	if m.Type != MessageTypeRequest || m.Method != wire.MethodPut {
		t.Errorf("Type/Method = %v/%v", m.Type, m.Method)
	}
	if m.Path != "/3303/0/5700" || len(m.Query) != 1 {
		t.Errorf("Path/Query = %q/%v", m.Path, m.Query)
	}
	if m.ContentFormat == nil || *m.ContentFormat != wire.FormatTextPlain {
		t.Errorf("ContentFormat = %v, want text/plain", m.ContentFormat)
	}
	if m.PayloadSize != 2 {
		t.Errorf("PayloadSize = %d, want 2", m.PayloadSize)
	}

	get := RequestMessage(wire.NewRequest(wire.MethodGet, "/3"))
	if get.ContentFormat != nil {
		t.Errorf("ContentFormat = %v for a request without payload", *get.ContentFormat)
	}
}

func TestResponseMessage(t *testing.T) {
	resp := wire.NewResponse(wire.CodeContent)
	resp.ContentFormat = wire.FormatSenMLJSON
	resp.Payload = []byte(`[{"n":"x","v":1}]`)

	m := ResponseMessage("/3303/0", resp, 0)
	if m.Code == nil || *m.Code != wire.CodeContent {
		t.Errorf("Code = %v, want CONTENT", m.Code)
	}
	if m.ProcessingTime != nil {
		t.Error("ProcessingTime set for zero elapsed")
	}
}
