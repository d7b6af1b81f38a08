package catalog

import (
	"strings"
	"time"

	"github.com/wolfman30/healthcare-booking/internal/apperr"
)

// Kind identifies a catalog collection.
type Kind string

const (
	KindDoctor     Kind = "doctor"
	KindPhysioPkg  Kind = "physiotherapy-package"
	KindNursingPkg Kind = "nursing-package"
	KindLabTest    Kind = "lab-test"
	KindOffer      Kind = "offer"
)

// Kinds lists every catalog kind in display order.
var Kinds = []Kind{KindDoctor, KindPhysioPkg, KindNursingPkg, KindLabTest, KindOffer}

// ParseKind validates a kind taken from a URL.
func ParseKind(s string) (Kind, bool) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, true
		}
	}
	return "", false
}

// IsPackage reports whether items of this kind carry package attributes.
func (k Kind) IsPackage() bool {
	return k == KindPhysioPkg || k == KindNursingPkg
}

// Item is a bookable or purchasable catalog entry. Kind-specific attributes
// are left empty for kinds that do not use them.
type Item struct {
	ID       string `json:"id" dynamodbav:"id"`
	Kind     Kind   `json:"kind" dynamodbav:"kind"`
	Name     string `json:"name" dynamodbav:"name"`
	Price    Money  `json:"price" dynamodbav:"price"`
	ImageURL string `json:"image_url,omitempty" dynamodbav:"image_url,omitempty"`

	// Doctor
	Specialty       string   `json:"specialty,omitempty" dynamodbav:"specialty,omitempty"`
	SpecialtyKey    string   `json:"specialty_key,omitempty" dynamodbav:"specialty_key,omitempty"`
	ExperienceYears int      `json:"experience_years,omitempty" dynamodbav:"experience_years,omitempty"`
	Rating          float64  `json:"rating,omitempty" dynamodbav:"rating,omitempty"`
	ReviewCount     int      `json:"review_count,omitempty" dynamodbav:"review_count,omitempty"`
	Location        string   `json:"location,omitempty" dynamodbav:"location,omitempty"`
	Bio             string   `json:"bio,omitempty" dynamodbav:"bio,omitempty"`
	Tags            []string `json:"tags,omitempty" dynamodbav:"tags,omitempty"`

	// Physiotherapy and nursing packages
	DurationLabel string   `json:"duration_label,omitempty" dynamodbav:"duration_label,omitempty"`
	Description   string   `json:"description,omitempty" dynamodbav:"description,omitempty"`
	Features      []string `json:"features,omitempty" dynamodbav:"features,omitempty"`
	IsFeatured    bool     `json:"is_featured,omitempty" dynamodbav:"is_featured,omitempty"`

	// Offers
	OldPrice      Money  `json:"old_price,omitempty" dynamodbav:"old_price,omitempty"`
	DiscountLabel string `json:"discount_label,omitempty" dynamodbav:"discount_label,omitempty"`

	Version   int64     `json:"version" dynamodbav:"version"`
	Retired   bool      `json:"retired" dynamodbav:"retired"`
	CreatedAt time.Time `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt time.Time `json:"updated_at" dynamodbav:"updated_at"`
}

// Available reports whether the item can still be referenced by new bookings.
func (i *Item) Available() bool {
	return i != nil && !i.Retired
}

// Validate applies the same rules to every admin panel.
func (i *Item) Validate() error {
	fields := map[string]string{}
	if strings.TrimSpace(i.Name) == "" {
		fields["name"] = "name is required"
	}
	if i.Price < 0 {
		fields["price"] = "price must not be negative"
	}
	switch i.Kind {
	case KindDoctor:
		if strings.TrimSpace(i.Specialty) == "" {
			fields["specialty"] = "specialty is required"
		}
		if i.Rating < 0 || i.Rating > 5 {
			fields["rating"] = "rating must be between 0 and 5"
		}
		if i.ExperienceYears < 0 {
			fields["experience_years"] = "experience must not be negative"
		}
		if i.ReviewCount < 0 {
			fields["review_count"] = "review count must not be negative"
		}
	case KindOffer:
		if i.OldPrice < 0 {
			fields["old_price"] = "old price must not be negative"
		}
	case KindPhysioPkg, KindNursingPkg, KindLabTest:
	default:
		fields["kind"] = "unknown catalog kind"
	}
	if len(fields) > 0 {
		return apperr.Validation(fields)
	}
	return nil
}

// normalize fills derived attributes before a write.
func (i *Item) normalize() {
	i.Name = strings.TrimSpace(i.Name)
	if i.Kind == KindDoctor && i.SpecialtyKey == "" {
		i.SpecialtyKey = specialtyKey(i.Specialty)
	}
}

func specialtyKey(specialty string) string {
	return strings.Join(strings.Fields(strings.ToLower(specialty)), "-")
}

// ListFilter narrows public listings.
type ListFilter struct {
	Specialty string
	Query     string
}

func (f ListFilter) matches(item *Item) bool {
	if f.Specialty != "" && item.SpecialtyKey != strings.ToLower(f.Specialty) {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		if !strings.Contains(strings.ToLower(item.Name), q) && !strings.Contains(strings.ToLower(item.Specialty), q) {
			return false
		}
	}
	return true
}
