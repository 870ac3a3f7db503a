package notify

import (
	"net/url"
	"strings"
)

// Event describes the event the registrant signed up for. It feeds the
// email copy and the Google Calendar template link.
type Event struct {
	Title       string
	Description string
	Location    string
	// Dates is the calendar range, e.g. 20260303T050000Z/20260303T080000Z.
	Dates    string
	Timezone string
}

// GoogleCalendarLink returns a calendar template link for the event.
func (e Event) GoogleCalendarLink() string {
	params := url.Values{}
	params.Set("action", "TEMPLATE")
	params.Set("text", e.Title)
	params.Set("details", e.Description)
	params.Set("location", e.Location)
	params.Set("dates", e.Dates)
	params.Set("ctz", e.Timezone)
	return "https://calendar.google.com/calendar/render?" + params.Encode()
}

// Subject is the registration confirmation subject line.
func (e Event) Subject() string {
	return e.Title + " 등록이 완료되었습니다"
}

const guestName = "게스트"

// RegistrationBody renders the plain-text confirmation email.
func (e Event) RegistrationBody(name, cancelLink string) string {
	safeName := strings.TrimSpace(name)
	if safeName == "" {
		safeName = guestName
	}
	return strings.Join([]string{
		safeName + "님, " + e.Title + " 사전 등록이 완료되었습니다.",
		"",
		"아래 링크를 통해 구글 캘린더에 일정을 등록하실 수 있습니다.",
		e.GoogleCalendarLink(),
		"",
		"일정에 변동이 있을 경우 아래 링크를 통해 등록을 취소하실 수 있습니다.",
		cancelLink,
		"",
		"감사합니다.",
	}, "\n")
}
