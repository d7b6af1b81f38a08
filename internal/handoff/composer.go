// Package handoff formats the operator notification that follows a stored
// booking. Delivery is best effort: building the link does not confirm
// anything and the booking stays pending.
package handoff

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/wolfman30/healthcare-booking/internal/booking"
)

// Locale selects the message language.
type Locale string

const (
	LocaleArabic  Locale = "ar"
	LocaleEnglish Locale = "en"
)

type labels struct {
	title, booking, service, patient, phone, address string
	age, date, time, price, payment, notes           string

	payments map[booking.PaymentMethod]string
}

var catalogue = map[Locale]labels{
	LocaleArabic: {
		title:   "طلب حجز جديد",
		booking: "رقم الحجز",
		service: "الخدمة",
		patient: "اسم المريض",
		phone:   "رقم الهاتف",
		address: "العنوان",
		age:     "العمر",
		date:    "التاريخ",
		time:    "الوقت",
		price:   "السعر",
		payment: "طريقة الدفع",
		notes:   "وصف الحالة",
		payments: map[booking.PaymentMethod]string{
			booking.PaymentCashOnDelivery: "الدفع عند الاستلام",
			booking.PaymentOnline:         "الدفع أونلاين",
		},
	},
	LocaleEnglish: {
		title:   "New booking request",
		booking: "Booking ID",
		service: "Service",
		patient: "Patient",
		phone:   "Phone",
		address: "Address",
		age:     "Age",
		date:    "Date",
		time:    "Time",
		price:   "Price",
		payment: "Payment",
		notes:   "Case description",
		payments: map[booking.PaymentMethod]string{
			booking.PaymentCashOnDelivery: "Cash on delivery",
			booking.PaymentOnline:         "Online",
		},
	},
}

// Composer builds wa.me links addressed to the operator number.
type Composer struct {
	number string
	labels labels
}

// NewComposer strips everything but digits from number. Unknown locales
// fall back to Arabic.
func NewComposer(number string, locale Locale) *Composer {
	l, ok := catalogue[locale]
	if !ok {
		l = catalogue[LocaleArabic]
	}
	return &Composer{number: digits(number), labels: l}
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Message renders the human-readable summary. It always includes the booking id.
func (c *Composer) Message(b *booking.Booking) string {
	l := c.labels
	var sb strings.Builder
	line := func(label, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		fmt.Fprintf(&sb, "%s: %s\n", label, value)
	}

	sb.WriteString(l.title + "\n")
	line(l.booking, b.ID)
	line(l.service, b.SubjectName)
	line(l.patient, b.Patient.Name)
	line(l.phone, b.Patient.Phone)
	line(l.address, b.Patient.Address)
	if b.Patient.Age != nil {
		line(l.age, strconv.Itoa(*b.Patient.Age))
	}
	if b.Schedule != nil {
		line(l.date, b.Schedule.Date)
		line(l.time, b.Schedule.Time)
	}
	line(l.price, b.Price.String())
	payment, ok := l.payments[b.PaymentMethod]
	if !ok {
		payment = string(b.PaymentMethod)
	}
	line(l.payment, payment)
	line(l.notes, b.CaseDescription)
	return strings.TrimRight(sb.String(), "\n")
}

// Link returns https://wa.me/<number>?text=<message>.
func (c *Composer) Link(b *booking.Booking) string {
	text := strings.ReplaceAll(url.QueryEscape(c.Message(b)), "+", "%20")
	return "https://wa.me/" + c.number + "?text=" + text
}
