package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Listing categories
const (
	CategorySale = "vente"
	CategoryRent = "location"
)

// Moderation statuses
const (
	ValidationPending        = "pending"
	ValidationApproved       = "approved"
	ValidationRejected       = "rejected"
	ValidationPaymentPending = "payment_pending"
)

type Property struct {
	ID               string         `db:"id" json:"id"`
	OwnerID          string         `db:"owner_id" json:"owner_id"`
	TeamID           *string        `db:"team_id" json:"team_id,omitempty"`
	Title            string         `db:"title" json:"title"`
	Description      string         `db:"description" json:"description"`
	Category         string         `db:"category" json:"category"`
	PropertyType     string         `db:"property_type" json:"property_type"`
	Price            int64          `db:"price" json:"price"`
	City             string         `db:"city" json:"city"`
	District         string         `db:"district" json:"district"`
	Address          string         `db:"address" json:"address"`
	Surface          int            `db:"surface" json:"surface"`
	Rooms            int            `db:"rooms" json:"rooms"`
	Bedrooms         int            `db:"bedrooms" json:"bedrooms"`
	Images           types.JSONText `db:"images" json:"images"`
	ValidationStatus string         `db:"validation_status" json:"validation_status"`
	RejectionReason  *string        `db:"rejection_reason" json:"rejection_reason,omitempty"`
	PaymentRef       *string        `db:"payment_ref" json:"payment_ref,omitempty"`
	PaymentAmount    *int64         `db:"payment_amount" json:"payment_amount,omitempty"`
	ServiceName      *string        `db:"service_name" json:"service_name,omitempty"`
	ViewsCount       int            `db:"views_count" json:"views_count"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updated_at"`
}

// PropertyColumns is the select list matching Property.
const PropertyColumns = `id, owner_id, team_id, title, description, category, property_type, price,
	city, district, address, surface, rooms, bedrooms, images, validation_status, rejection_reason,
	payment_ref, payment_amount, service_name, views_count, created_at, updated_at`

// IsPublic reports whether anyone may see the listing.
func (p *Property) IsPublic() bool {
	return p.ValidationStatus == ValidationApproved
}
