package handoff

import (
	"bytes"
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/healthcare-booking/internal/booking"
	"github.com/wolfman30/healthcare-booking/internal/catalog"
	"github.com/wolfman30/healthcare-booking/pkg/logging"
)

func sampleBooking() *booking.Booking {
	age := 34
	return &booking.Booking{
		ID:            "7f3c9a",
		SubjectType:   booking.SubjectDoctorAppointment,
		SubjectRef:    "D1",
		SubjectName:   "Dr. Sara",
		Patient:       booking.Patient{Name: "Omar", Phone: "0500000000", Age: &age},
		Schedule:      &booking.Schedule{Date: "2025-01-10", Time: "10:00 ص"},
		PaymentMethod: booking.PaymentCashOnDelivery,
		Price:         catalog.Major(300),
		Status:        booking.StatusPending,
	}
}

func decodedText(t *testing.T, link string) string {
	t.Helper()
	u, err := url.Parse(link)
	require.NoError(t, err)
	return u.Query().Get("text")
}

func TestLinkAddressesOperatorNumber(t *testing.T) {
	c := NewComposer("+966 50-123-4567", LocaleEnglish)
	link := c.Link(sampleBooking())

	assert.True(t, strings.HasPrefix(link, "https://wa.me/966501234567?text="), link)
	assert.NotContains(t, link, "+", "spaces are percent-encoded")
	assert.Equal(t, c.Message(sampleBooking()), decodedText(t, link))
}

func TestMessageEnglish(t *testing.T) {
	msg := NewComposer("966500000000", LocaleEnglish).Message(sampleBooking())

	assert.Equal(t, strings.Join([]string{
		"New booking request",
		"Booking ID: 7f3c9a",
		"Service: Dr. Sara",
		"Patient: Omar",
		"Phone: 0500000000",
		"Age: 34",
		"Date: 2025-01-10",
		"Time: 10:00 ص",
		"Price: 300",
		"Payment: Cash on delivery",
	}, "\n"), msg)
}

func TestMessageArabicSkipsEmptyFields(t *testing.T) {
	b := sampleBooking()
	b.Schedule = nil
	b.Patient.Age = nil
	b.Price = catalog.Money(8550)
	b.PaymentMethod = booking.PaymentOnline
	b.CaseDescription = "ألم في الظهر"

	msg := NewComposer("966500000000", Locale("fr")).Message(b)
	assert.Contains(t, msg, "طلب حجز جديد")
	assert.Contains(t, msg, "رقم الحجز: 7f3c9a")
	assert.Contains(t, msg, "السعر: 85.50")
	assert.Contains(t, msg, "طريقة الدفع: الدفع أونلاين")
	assert.Contains(t, msg, "وصف الحالة: ألم في الظهر")
	assert.NotContains(t, msg, "التاريخ")
	assert.NotContains(t, msg, "العمر")
	assert.NotContains(t, msg, "العنوان")
}

func TestSubmittedDoctorBookingLink(t *testing.T) {
	items := catalog.NewMemoryRepository()
	require.NoError(t, items.Create(context.Background(), &catalog.Item{
		ID: "D1", Kind: catalog.KindDoctor, Name: "Dr. Sara", Specialty: "Cardiology", Price: catalog.Major(300), Version: 1,
	}))
	now := func() time.Time { return time.Date(2025, 1, 9, 10, 0, 0, 0, time.UTC) }
	svc := booking.NewService(
		booking.NewMemoryRepository(nil),
		booking.NewBuilder(items).WithClock(now),
		NewComposer("966500000000", LocaleArabic),
		logging.NewWithWriter("error", &bytes.Buffer{}),
		booking.WithSlots([]string{"10:00 ص"}, time.UTC),
		booking.WithClock(now),
	)

	result, err := svc.Submit(context.Background(), "u1", booking.SubmitRequest{Draft: booking.Draft{
		SubjectType:   booking.SubjectDoctorAppointment,
		SubjectRef:    "D1",
		Patient:       booking.Patient{Name: "Omar", Phone: "0500000000"},
		Schedule:      &booking.Schedule{Date: "2025-01-10", Time: "10:00 ص"},
		PaymentMethod: "cash-on-delivery",
	}})
	require.NoError(t, err)
	assert.Equal(t, booking.StatusPending, result.Booking.Status)

	text := decodedText(t, result.HandoffURL)
	assert.Contains(t, text, "300")
	assert.Contains(t, text, result.Booking.ID)
	assert.Contains(t, text, "الدفع عند الاستلام")
}
