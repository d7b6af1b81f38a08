package airtable

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/healthcare-booking/internal/events"
)

func TestCreateRecords(t *testing.T) {
	var received createRequest
	var path, auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.EscapedPath()
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(createResponse{Records: []CreatedRecord{{ID: "rec123"}}})
	}))
	defer server.Close()

	client := NewClient("test_token", "appBase")
	client.SetBaseURL(server.URL + "/")

	created, err := client.CreateRecords(context.Background(), "Doctors Images", Record{Fields: map[string]any{"Doctor ID": "D1"}})
	require.NoError(t, err)
	assert.Equal(t, "rec123", created[0].ID)
	assert.Equal(t, "/appBase/Doctors%20Images", path)
	assert.Equal(t, "Bearer test_token", auth)
	require.Len(t, received.Records, 1)
	assert.Equal(t, "D1", received.Records[0].Fields["Doctor ID"])
}

func TestCreateRecordsAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":{"type":"INVALID_VALUE_FOR_COLUMN","message":"bad attachment"}}`))
	}))
	defer server.Close()

	client := NewClient("t", "appBase")
	client.SetBaseURL(server.URL)
	_, err := client.CreateRecords(context.Background(), "Patients Images", Record{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INVALID_VALUE_FOR_COLUMN")
}

func TestCreateRecordsRequiresToken(t *testing.T) {
	_, err := NewClient("", "appBase").CreateRecords(context.Background(), "x", Record{})
	assert.Error(t, err)
}

type fakeCreator struct {
	tables  []string
	records []Record
	err     error
}

func (f *fakeCreator) CreateRecords(_ context.Context, table string, records ...Record) ([]CreatedRecord, error) {
	f.tables = append(f.tables, table)
	f.records = append(f.records, records...)
	return []CreatedRecord{{ID: "rec1"}}, f.err
}

func entry(t *testing.T, eventType string, payload any) events.Entry {
	t.Helper()
	e, err := events.NewEntry(eventType, "agg", payload, time.Now())
	require.NoError(t, err)
	return e
}

func TestMirrorDoctorImage(t *testing.T) {
	creator := &fakeCreator{}
	mirror := NewMirror(creator, Tables{}, nil)

	err := mirror.Handle(context.Background(), entry(t, events.TypeCatalogImageUploaded, events.CatalogImageUploadedV1{
		Kind: "doctor", ItemID: "D1", ItemName: "Dr. Sara", URL: "https://cdn.example.com/d1.jpg", Filename: "d1.jpg",
	}))
	require.NoError(t, err)
	require.Equal(t, []string{"Doctors Images"}, creator.tables)
	fields := creator.records[0].Fields
	assert.Equal(t, "D1", fields["Doctor ID"])
	assert.Equal(t, "Dr. Sara", fields["Doctor Name"])
	assert.Equal(t, []Attachment{{URL: "https://cdn.example.com/d1.jpg", Filename: "d1.jpg"}}, fields["Attachments"])
}

func TestMirrorSkipsNonDoctorImages(t *testing.T) {
	creator := &fakeCreator{}
	mirror := NewMirror(creator, Tables{}, nil)
	err := mirror.Handle(context.Background(), entry(t, events.TypeCatalogImageUploaded, events.CatalogImageUploadedV1{Kind: "offer"}))
	require.NoError(t, err)
	assert.Empty(t, creator.tables)
}

func TestMirrorPrescriptionPropagatesErrors(t *testing.T) {
	creator := &fakeCreator{err: errors.New("rate limited")}
	mirror := NewMirror(creator, Tables{Patients: "Rx"}, nil)
	err := mirror.Handle(context.Background(), entry(t, events.TypePrescriptionUploaded, events.PrescriptionUploadedV1{
		RequesterID: "u1", PatientName: "Omar", URL: "https://cdn.example.com/rx.jpg",
	}))
	require.Error(t, err)
	assert.Equal(t, []string{"Rx"}, creator.tables)
	assert.Equal(t, "u1", creator.records[0].Fields["Patient_ID"])
}
