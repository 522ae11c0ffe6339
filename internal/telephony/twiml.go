package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strconv"
	"time"

	"prepaid-gateway/internal/ivr"
)

// TwiML is a minimal Twilio Markup Language response builder.
// It intentionally avoids any provider SDK dependency.
//
// Only include primitives we need at the adapter boundary.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlSay struct {
	XMLName xml.Name `xml:"Say"`
	Text    string   `xml:",chardata"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

type twimlGather struct {
	XMLName     xml.Name `xml:"Gather"`
	Input       string   `xml:"input,attr"`
	NumDigits   string   `xml:"numDigits,attr,omitempty"`
	FinishOnKey string   `xml:"finishOnKey,attr,omitempty"`
	Timeout     string   `xml:"timeout,attr,omitempty"`
	Action      string   `xml:"action,attr"`
	Method      string   `xml:"method,attr"`
	Say         *twimlSay
}

type twimlRedirect struct {
	XMLName xml.Name `xml:"Redirect"`
	Method  string   `xml:"method,attr"`
	URL     string   `xml:",chardata"`
}

type twimlDial struct {
	XMLName   xml.Name `xml:"Dial"`
	Action    string   `xml:"action,attr"`
	Method    string   `xml:"method,attr"`
	CallerID  string   `xml:"callerId,attr,omitempty"`
	TimeLimit string   `xml:"timeLimit,attr,omitempty"`
	Number    string   `xml:"Number"`
}

// RenderTwiML maps a flow instruction to TwiML. targetURL translates the
// instruction's logical next target into the webhook URL Twilio should
// post to.
func RenderTwiML(in ivr.Instruction, targetURL func(target string) string) (string, error) {
	var r twimlResponse

	switch in.Action {
	case ivr.ActionSayHangup:
		if in.Say != "" {
			r.Verbs = append(r.Verbs, twimlSay{Text: in.Say})
		}
		r.Verbs = append(r.Verbs, twimlHangup{})
	case ivr.ActionGather:
		g := twimlGather{
			Input:  "dtmf",
			Action: targetURL(in.GatherTarget),
			Method: "POST",
			Say:    &twimlSay{Text: in.Say},
		}
		if in.GatherDigits > 0 {
			g.NumDigits = strconv.Itoa(in.GatherDigits)
		} else {
			// Variable-length input ends on pound.
			g.FinishOnKey = "#"
		}
		if in.GatherTimeout > 0 {
			g.Timeout = strconv.FormatInt(int64(in.GatherTimeout/time.Second), 10)
		}
		r.Verbs = append(r.Verbs, g)
		// No input falls through the gather; redirect posts the empty
		// digits so the flow applies its own attempt/TTL bounds.
		r.Verbs = append(r.Verbs, twimlRedirect{Method: "POST", URL: g.Action})
	case ivr.ActionDial:
		if in.Say != "" {
			r.Verbs = append(r.Verbs, twimlSay{Text: in.Say})
		}
		d := twimlDial{
			Action:   targetURL(in.DialTarget) + "?leg=" + in.DialLegID,
			Method:   "POST",
			CallerID: in.DialCallerID,
			Number:   in.DialNumber,
		}
		if in.DialMaxSeconds > 0 {
			d.TimeLimit = strconv.FormatInt(in.DialMaxSeconds, 10)
		}
		r.Verbs = append(r.Verbs, d)
	default:
		return "", errors.New("telephony: unknown instruction action")
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
