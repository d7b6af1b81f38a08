package booking

import (
	"strings"
	"time"

	"github.com/wolfman30/healthcare-booking/internal/catalog"
)

// SubjectType is the kind of service being booked.
type SubjectType string

const (
	SubjectDoctorAppointment SubjectType = "doctor-appointment"
	SubjectPhysiotherapy     SubjectType = "physiotherapy-package"
	SubjectNursing           SubjectType = "nursing-package"
	SubjectLabTest           SubjectType = "lab-test"
)

var subjects = map[SubjectType]struct {
	kind       catalog.Kind
	collection string
}{
	SubjectDoctorAppointment: {catalog.KindDoctor, "doctor_bookings"},
	SubjectPhysiotherapy:     {catalog.KindPhysioPkg, "physiotherapy_bookings"},
	SubjectNursing:           {catalog.KindNursingPkg, "nursing_care_bookings"},
	SubjectLabTest:           {catalog.KindLabTest, "lab_test_bookings"},
}

// Valid reports whether t is a bookable subject type.
func (t SubjectType) Valid() bool {
	_, ok := subjects[t]
	return ok
}

// Kind is the catalog kind a subject reference points into.
func (t SubjectType) Kind() catalog.Kind { return subjects[t].kind }

// Collection names the operational view the booking is filed under.
func (t SubjectType) Collection() string { return subjects[t].collection }

// RequiresSchedule reports whether bookings of this type reserve a slot.
func (t SubjectType) RequiresSchedule() bool { return t == SubjectDoctorAppointment }

// Collections lists every service collection.
func Collections() []string {
	return []string{"doctor_bookings", "physiotherapy_bookings", "nursing_care_bookings", "lab_test_bookings"}
}

// Status is the booking lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

// Active reports whether a booking in this state holds its slot.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PaymentMethod is the requester's payment preference. No payment is taken.
type PaymentMethod string

const (
	PaymentCashOnDelivery PaymentMethod = "cash-on-delivery"
	PaymentOnline         PaymentMethod = "online"
)

// ParsePaymentMethod accepts "cash" as an alias for cash-on-delivery.
func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cash", string(PaymentCashOnDelivery):
		return PaymentCashOnDelivery, true
	case string(PaymentOnline):
		return PaymentOnline, true
	}
	return "", false
}

// Patient is captured at booking time and may differ from the requester.
type Patient struct {
	Name    string `json:"name" dynamodbav:"name"`
	Phone   string `json:"phone" dynamodbav:"phone"`
	Address string `json:"address,omitempty" dynamodbav:"address,omitempty"`
	Age     *int   `json:"age,omitempty" dynamodbav:"age,omitempty"`
}

// Schedule is a calendar date (YYYY-MM-DD) and one of the configured slots.
type Schedule struct {
	Date string `json:"date" dynamodbav:"date"`
	Time string `json:"time" dynamodbav:"time"`
}

// Booking is a persisted reservation request. SubjectName, Price and
// SubjectVersion are copied from the catalog item at creation and never
// change afterwards.
type Booking struct {
	ID                string        `json:"id" dynamodbav:"booking_id"`
	SubjectType       SubjectType   `json:"subject_type" dynamodbav:"subject_type"`
	SubjectRef        string        `json:"subject_ref" dynamodbav:"subject_ref"`
	SubjectName       string        `json:"subject_name" dynamodbav:"subject_name"`
	SubjectVersion    int64         `json:"subject_version" dynamodbav:"subject_version"`
	ServiceCollection string        `json:"service_collection" dynamodbav:"service_collection"`
	RequesterID       string        `json:"requester_id" dynamodbav:"requester_id"`
	Patient           Patient       `json:"patient" dynamodbav:"patient"`
	Schedule          *Schedule     `json:"schedule,omitempty" dynamodbav:"schedule,omitempty"`
	PaymentMethod     PaymentMethod `json:"payment_method" dynamodbav:"payment_method"`
	Price             catalog.Money `json:"price" dynamodbav:"price"`
	CaseDescription   string        `json:"case_description,omitempty" dynamodbav:"case_description,omitempty"`
	IdempotencyKey    string        `json:"idempotency_key,omitempty" dynamodbav:"idempotency_key,omitempty"`
	Status            Status        `json:"status" dynamodbav:"status"`
	CreatedAt         time.Time     `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at" dynamodbav:"updated_at"`
}

// HoldsSlot reports whether b reserves its schedule slot.
func (b *Booking) HoldsSlot() bool {
	return b.SubjectType.RequiresSchedule() && b.Schedule != nil && b.Status.Active()
}

// Clone returns a deep copy.
func (b *Booking) Clone() *Booking {
	out := *b
	if b.Schedule != nil {
		s := *b.Schedule
		out.Schedule = &s
	}
	if b.Patient.Age != nil {
		age := *b.Patient.Age
		out.Patient.Age = &age
	}
	return &out
}

func slotKey(subjectRef string, s Schedule) string {
	return subjectRef + "#" + s.Date + "#" + s.Time
}
