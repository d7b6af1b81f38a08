package booking

import (
	"strings"
	"time"

	"github.com/wolfman30/healthcare-booking/internal/apperr"
	"github.com/wolfman30/healthcare-booking/internal/catalog"
)

const dateLayout = "2006-01-02"

// Snapshot is what the requester saw when selecting the item. It is only
// used to detect changes; the stored booking always takes current values.
type Snapshot struct {
	Price   *catalog.Money `json:"price,omitempty"`
	Name    string         `json:"name,omitempty"`
	Version int64          `json:"version,omitempty"`
}

// Draft is the intake form as submitted.
type Draft struct {
	SubjectType     SubjectType `json:"subject_type"`
	SubjectRef      string      `json:"subject_ref"`
	Patient         Patient     `json:"patient"`
	Schedule        *Schedule   `json:"schedule,omitempty"`
	PaymentMethod   string      `json:"payment_method"`
	CaseDescription string      `json:"case_description,omitempty"`
	Snapshot        *Snapshot   `json:"snapshot,omitempty"`
}

// Validate checks every field and normalizes the draft in place. now is
// interpreted in loc when deciding which dates are still bookable.
func (d *Draft) Validate(now time.Time, slots []string, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	fields := map[string]string{}

	d.SubjectRef = strings.TrimSpace(d.SubjectRef)
	d.Patient.Name = strings.TrimSpace(d.Patient.Name)
	d.Patient.Phone = strings.TrimSpace(d.Patient.Phone)
	d.Patient.Address = strings.TrimSpace(d.Patient.Address)
	d.CaseDescription = strings.TrimSpace(d.CaseDescription)

	if !d.SubjectType.Valid() {
		fields["subject_type"] = "unknown service type"
	}
	if d.SubjectRef == "" {
		fields["subject_ref"] = "a service must be selected"
	}
	if d.Patient.Name == "" {
		fields["patient.name"] = "patient name is required"
	}
	if d.Patient.Phone == "" {
		fields["patient.phone"] = "phone number is required"
	}
	if d.Patient.Age != nil && *d.Patient.Age < 0 {
		fields["patient.age"] = "age cannot be negative"
	}

	method, ok := ParsePaymentMethod(d.PaymentMethod)
	if !ok {
		fields["payment_method"] = "choose cash-on-delivery or online"
	} else {
		d.PaymentMethod = string(method)
	}

	if d.Schedule == nil {
		if d.SubjectType.RequiresSchedule() {
			fields["schedule"] = "date and time are required"
		}
	} else {
		validateSchedule(d.Schedule, now, slots, loc, fields)
	}

	if len(fields) > 0 {
		return apperr.Validation(fields)
	}
	return nil
}

func validateSchedule(s *Schedule, now time.Time, slots []string, loc *time.Location, fields map[string]string) {
	s.Date = strings.TrimSpace(s.Date)
	s.Time = strings.TrimSpace(s.Time)

	date, err := time.ParseInLocation(dateLayout, s.Date, loc)
	if err != nil {
		fields["schedule.date"] = "date must be YYYY-MM-DD"
	} else {
		local := now.In(loc)
		yesterday := time.Date(local.Year(), local.Month(), local.Day()-1, 0, 0, 0, 0, loc)
		if date.Before(yesterday) {
			fields["schedule.date"] = "date is in the past"
		}
	}
	if !containsSlot(slots, s.Time) {
		fields["schedule.time"] = "choose one of the available time slots"
	}
}

func containsSlot(slots []string, slot string) bool {
	for _, s := range slots {
		if s == slot {
			return true
		}
	}
	return false
}
