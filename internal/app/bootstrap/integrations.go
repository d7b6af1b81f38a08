package bootstrap

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/wolfman30/healthcare-booking/internal/airtable"
	appconfig "github.com/wolfman30/healthcare-booking/internal/config"
	"github.com/wolfman30/healthcare-booking/internal/events"
	"github.com/wolfman30/healthcare-booking/internal/notify"
	"github.com/wolfman30/healthcare-booking/pkg/logging"
)

// BuildEmailSender picks the operator mail provider. SES needs a client,
// SendGrid an API key; anything else falls back to the logging stub.
func BuildEmailSender(cfg *appconfig.Config, creds *Credentials, ses *sesv2.Client, logger *logging.Logger) notify.EmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	switch cfg.EmailProvider {
	case "ses":
		if ses != nil {
			return notify.NewSESSender(ses, notify.SESConfig{
				FromEmail: cfg.EmailFromAddress,
				FromName:  cfg.EmailFromName,
			}, logger)
		}
	case "sendgrid":
		if creds != nil {
			if sender := notify.NewSendGridSender(notify.SendGridConfig{
				APIKey:    creds.SendGridAPIKey,
				FromEmail: cfg.EmailFromAddress,
				FromName:  cfg.EmailFromName,
			}, logger); sender != nil {
				return sender
			}
		}
	}
	logger.Warn("no email provider configured, operator notifications are logged only", "provider", cfg.EmailProvider)
	return notify.NewStubEmailSender(logger)
}

// BuildAirtableMirror returns nil when the base or token is missing.
func BuildAirtableMirror(cfg *appconfig.Config, creds *Credentials, logger *logging.Logger) *airtable.Mirror {
	if creds == nil || creds.AirtableToken == "" || strings.TrimSpace(cfg.AirtableBaseID) == "" {
		return nil
	}
	client := airtable.NewClient(creds.AirtableToken, cfg.AirtableBaseID)
	if cfg.AirtableBaseURL != "" {
		client.SetBaseURL(cfg.AirtableBaseURL)
	}
	return airtable.NewMirror(client, airtable.Tables{
		Doctors:  cfg.AirtableDoctorsTable,
		Patients: cfg.AirtablePatientsTable,
	}, logger)
}

// BuildEventRouter registers the outbox consumers: operator mail for new
// bookings, the Airtable mirror for uploads, and the SQS forwarder for
// every event when a queue is configured.
func BuildEventRouter(cfg *appconfig.Config, sender notify.EmailSender, mirror *airtable.Mirror, sqsClient *sqs.Client, logger *logging.Logger) *events.Router {
	router := events.NewRouter()
	if len(cfg.OperatorEmails) > 0 && sender != nil {
		router.On(events.TypeBookingCreated, notify.NewBookingNotifier(sender, cfg.OperatorEmails, logger))
	}
	if mirror != nil {
		router.On(events.TypeCatalogImageUploaded, mirror)
		router.On(events.TypePrescriptionUploaded, mirror)
	}
	if sqsClient != nil && strings.TrimSpace(cfg.BookingEventsQueueURL) != "" {
		router.Any(events.NewSQSForwarder(sqsClient, cfg.BookingEventsQueueURL))
	}
	return router
}
