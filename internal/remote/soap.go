package remote

import (
	"encoding/xml"
	"fmt"
	"strings"
)

const soapNS = "http://www.w3.org/2003/05/soap-envelope"

// Request side. Prefixed tags are written literally by encoding/xml.

type envelope struct {
	XMLName   xml.Name      `xml:"soap:Envelope"`
	XmlnsSoap string        `xml:"xmlns:soap,attr"`
	Header    header        `xml:"soap:Header"`
	Body      body          `xml:"soap:Body"`
}

type body struct {
	Request actionRequest
}

type header struct {
	Action    string    `xml:"Action"`
	Security  *security `xml:"Security,omitempty"`
	Timestamp timestamp `xml:"Timestamp"`
	Locale    string    `xml:"Locale,omitempty"`
}

type security struct {
	UsernameToken usernameToken `xml:"UsernameToken"`
}

type usernameToken struct {
	Username string `xml:"Username"`
	Password string `xml:"Password"`
}

type timestamp struct {
	Created string `xml:"Created"`
	Expires string `xml:"Expires"`
}

// actionRequest is renamed to the action at marshal time.
type actionRequest struct {
	XMLName    xml.Name
	Parameters any `xml:"parameters"`
}

type versionsParams struct {
	Start string      `xml:"start,attr"`
	End   string      `xml:"end,attr"`
	Items []eventItem `xml:"event_item"`
}

type eventItem struct {
	ID        string `xml:"id,attr"`
	Version   string `xml:"version,attr"`
	Operation string `xml:"operation,attr,omitempty"`
}

type byIDParams struct {
	IDs []string `xml:"event_id"`
}

// Response side. Names match by local part so any namespace prefix works.

type responseEnvelope struct {
	Body struct {
		Fault   *fault `xml:"Fault"`
		Content []byte `xml:",innerxml"`
	} `xml:"Body"`
}

type fault struct {
	Code        string `xml:"Code>Value"`
	Reason      string `xml:"Reason>Text"`
	FaultString string `xml:"faultstring"`
	Detail      struct {
		Code      string `xml:"code"`
		Diagnosis string `xml:"diagnosis"`
	} `xml:"Detail"`
}

func (f *fault) Error() string {
	reason := strings.TrimSpace(f.Reason)
	if reason == "" {
		reason = strings.TrimSpace(f.FaultString)
	}
	msg := "soap fault"
	if f.Code != "" {
		msg += " " + strings.TrimSpace(f.Code)
	}
	if reason != "" {
		msg += ": " + reason
	}
	if f.Detail.Code != "" {
		msg += fmt.Sprintf(" (%s: %s)", f.Detail.Code, strings.TrimSpace(f.Detail.Diagnosis))
	}
	return msg
}

type versionsResponse struct {
	Items []eventItem `xml:"returns>event_item"`
}

type eventsResponse struct {
	Events []scheduleEvent `xml:"returns>schedule_event"`
}

type scheduleEvent struct {
	ID          string      `xml:"id,attr"`
	Version     string      `xml:"version,attr"`
	EventType   string      `xml:"event_type,attr"`
	Plan        string      `xml:"plan,attr"`
	Detail      string      `xml:"detail,attr"`
	Timezone    string      `xml:"timezone,attr"`
	Description string      `xml:"description"`
	Members     []member    `xml:"members>member"`
	When        *when       `xml:"when"`
	Repeat      *repeatInfo `xml:"repeat_info"`
}

type member struct {
	User     *memberRef `xml:"user"`
	Facility *memberRef `xml:"facility"`
}

type memberRef struct {
	ID   string `xml:"id,attr"`
	Name string `xml:"name,attr"`
}

type when struct {
	DateTime []span `xml:"datetime"`
	Date     []span `xml:"date"`
}

type span struct {
	Start string `xml:"start,attr"`
	End   string `xml:"end,attr"`
}

type repeatInfo struct {
	Conditions []condition `xml:"condition"`
	Exclusions []span      `xml:"exclusive_datetimes>exclusive_datetime"`
}

type condition struct {
	Type      string `xml:"type,attr"`
	Day       string `xml:"day,attr"`
	Week      string `xml:"week,attr"`
	StartDate string `xml:"start_date,attr"`
	EndDate   string `xml:"end_date,attr"`
	StartTime string `xml:"start_time,attr"`
	EndTime   string `xml:"end_time,attr"`
}
