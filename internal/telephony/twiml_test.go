package telephony

import (
	"strings"
	"testing"
	"time"

	"prepaid-gateway/internal/ivr"
)

func testTarget(target string) string {
	return "https://gw.example.com/webhooks/twilio/voice/" + target
}

func TestRenderTwiMLSayHangup(t *testing.T) {
	xml, err := RenderTwiML(ivr.Instruction{Action: ivr.ActionSayHangup, Say: "Goodbye."}, testTarget)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(xml, "<Say>Goodbye.</Say>") {
		t.Fatalf("expected say in xml: %s", xml)
	}
	if !strings.Contains(xml, "<Hangup") {
		t.Fatalf("expected hangup in xml: %s", xml)
	}
}

func TestRenderTwiMLGather(t *testing.T) {
	xml, err := RenderTwiML(ivr.Instruction{
		Action:        ivr.ActionGather,
		Say:           "Enter your PIN.",
		GatherDigits:  6,
		GatherTarget:  ivr.TargetPin,
		GatherTimeout: 30 * time.Second,
	}, testTarget)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	for _, want := range []string{
		`numDigits="6"`,
		`timeout="30"`,
		`action="https://gw.example.com/webhooks/twilio/voice/pin"`,
		`method="POST"`,
		"<Say>Enter your PIN.</Say>",
	} {
		if !strings.Contains(xml, want) {
			t.Fatalf("expected %q in xml: %s", want, xml)
		}
	}
}

func TestRenderTwiMLGatherVariableLength(t *testing.T) {
	xml, err := RenderTwiML(ivr.Instruction{
		Action:       ivr.ActionGather,
		Say:          "Enter the destination.",
		GatherTarget: ivr.TargetDestination,
	}, testTarget)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(xml, `finishOnKey="#"`) {
		t.Fatalf("expected finishOnKey in xml: %s", xml)
	}
	if !strings.Contains(xml, "<Redirect") {
		t.Fatalf("expected no-input redirect in xml: %s", xml)
	}
	if strings.Contains(xml, "numDigits") {
		t.Fatalf("unexpected numDigits in xml: %s", xml)
	}
}

func TestRenderTwiMLDial(t *testing.T) {
	xml, err := RenderTwiML(ivr.Instruction{
		Action:         ivr.ActionDial,
		Say:            "Connecting your call.",
		DialNumber:     "+15557654321",
		DialMaxSeconds: 5700,
		DialTarget:     ivr.TargetCompleted,
		DialCallerID:   "+15550000000",
		DialLegID:      "leg-1",
	}, testTarget)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	for _, want := range []string{
		`timeLimit="5700"`,
		`callerId="+15550000000"`,
		`action="https://gw.example.com/webhooks/twilio/voice/completed?leg=leg-1"`,
		"<Number>+15557654321</Number>",
	} {
		if !strings.Contains(xml, want) {
			t.Fatalf("expected %q in xml: %s", want, xml)
		}
	}
}

func TestRenderTwiMLUnknownAction(t *testing.T) {
	if _, err := RenderTwiML(ivr.Instruction{Action: "noop"}, testTarget); err == nil {
		t.Fatalf("expected error")
	}
}
