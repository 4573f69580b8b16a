package worker

import (
	"time"

	"github.com/rotisserie/eris"
)

// SendWindow is the half-open range of local hours [StartHour, EndHour) in
// which outbound messages may be sent. StartHour > EndHour wraps past midnight.
type SendWindow struct {
	StartHour int
	EndHour   int
	Location  *time.Location
}

func NewSendWindow(startHour, endHour int, timezone string) (SendWindow, error) {
	if startHour < 0 || startHour > 23 || endHour < 0 || endHour > 24 {
		return SendWindow{}, eris.Errorf("send window hours out of range: [%d,%d)", startHour, endHour)
	}
	if startHour == endHour {
		return SendWindow{}, eris.Errorf("send window is empty: [%d,%d)", startHour, endHour)
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return SendWindow{}, eris.Wrapf(err, "load timezone %q", timezone)
	}
	return SendWindow{StartHour: startHour, EndHour: endHour, Location: loc}, nil
}

func (w SendWindow) Contains(t time.Time) bool {
	loc := w.Location
	if loc == nil {
		loc = time.UTC
	}
	h := t.In(loc).Hour()
	if w.StartHour < w.EndHour {
		return h >= w.StartHour && h < w.EndHour
	}
	return h >= w.StartHour || h < w.EndHour
}
