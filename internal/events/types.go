package events

import "time"

// BookingCreatedV1 is enqueued in the same transaction as a new booking.
type BookingCreatedV1 struct {
	BookingID         string    `json:"booking_id"`
	RequesterID       string    `json:"requester_id"`
	SubjectType       string    `json:"subject_type"`
	SubjectRef        string    `json:"subject_ref"`
	SubjectName       string    `json:"subject_name"`
	ServiceCollection string    `json:"service_collection"`
	PatientName       string    `json:"patient_name"`
	PatientPhone      string    `json:"patient_phone"`
	Date              string    `json:"date,omitempty"`
	Time              string    `json:"time,omitempty"`
	Price             string    `json:"price"`
	PaymentMethod     string    `json:"payment_method"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
}

// BookingStatusChangedV1 records an accepted status transition.
type BookingStatusChangedV1 struct {
	BookingID         string    `json:"booking_id"`
	ServiceCollection string    `json:"service_collection"`
	From              string    `json:"from"`
	To                string    `json:"to"`
	ChangedBy         string    `json:"changed_by"`
	ChangedAt         time.Time `json:"changed_at"`
}

// CatalogImageUploadedV1 follows a successful catalog image upload.
type CatalogImageUploadedV1 struct {
	Kind       string    `json:"kind"`
	ItemID     string    `json:"item_id"`
	ItemName   string    `json:"item_name"`
	URL        string    `json:"url"`
	Filename   string    `json:"filename"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// PrescriptionUploadedV1 follows a patient prescription upload.
type PrescriptionUploadedV1 struct {
	RequesterID string    `json:"requester_id"`
	PatientName string    `json:"patient_name"`
	URL         string    `json:"url"`
	Filename    string    `json:"filename"`
	UploadedAt  time.Time `json:"uploaded_at"`
}
