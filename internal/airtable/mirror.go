package airtable

import (
	"context"

	"github.com/wolfman30/healthcare-booking/internal/events"
	"github.com/wolfman30/healthcare-booking/pkg/logging"
)

// RecordCreator is satisfied by *Client.
type RecordCreator interface {
	CreateRecords(ctx context.Context, table string, records ...Record) ([]CreatedRecord, error)
}

// Tables names the tracking tables.
type Tables struct {
	Doctors  string
	Patients string
}

// Mirror copies doctor images and prescription uploads into Airtable. It runs
// as an outbox handler; errors are returned so the entry is retried.
type Mirror struct {
	client RecordCreator
	tables Tables
	logger *logging.Logger
}

func NewMirror(client RecordCreator, tables Tables, logger *logging.Logger) *Mirror {
	if client == nil {
		panic("airtable: client required")
	}
	if tables.Doctors == "" {
		tables.Doctors = "Doctors Images"
	}
	if tables.Patients == "" {
		tables.Patients = "Patients Images"
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Mirror{client: client, tables: tables, logger: logger}
}

func (m *Mirror) Handle(ctx context.Context, entry events.Entry) error {
	switch entry.Type {
	case events.TypeCatalogImageUploaded:
		var evt events.CatalogImageUploadedV1
		if err := entry.Decode(&evt); err != nil {
			return err
		}
		if evt.Kind != "doctor" {
			return nil
		}
		return m.create(ctx, m.tables.Doctors, entry, map[string]any{
			"Doctor ID":   evt.ItemID,
			"Doctor Name": evt.ItemName,
			"Attachments": []Attachment{{URL: evt.URL, Filename: evt.Filename}},
		})
	case events.TypePrescriptionUploaded:
		var evt events.PrescriptionUploadedV1
		if err := entry.Decode(&evt); err != nil {
			return err
		}
		return m.create(ctx, m.tables.Patients, entry, map[string]any{
			"Patient_ID":   evt.RequesterID,
			"Patient_Name": evt.PatientName,
			"Attachments":  []Attachment{{URL: evt.URL, Filename: evt.Filename}},
		})
	}
	return nil
}

func (m *Mirror) create(ctx context.Context, table string, entry events.Entry, fields map[string]any) error {
	created, err := m.client.CreateRecords(ctx, table, Record{Fields: fields})
	if err != nil {
		return err
	}
	var recordID string
	if len(created) > 0 {
		recordID = created[0].ID
	}
	m.logger.WithContext(ctx).Info("airtable record created",
		"table", table,
		"event_id", entry.ID,
		"event_type", entry.Type,
		"record_id", recordID,
	)
	return nil
}
