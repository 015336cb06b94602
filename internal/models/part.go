package models

import "time"

type PartStatus string

const (
	PartPendingApproval PartStatus = "PENDING_CUSTOMER_APPROVAL"
	PartDraft           PartStatus = "DRAFT"
	PartRejected        PartStatus = "REJECTED"
	PartConsumed        PartStatus = "CONSUMED"
)

// WorkOrderPart is a quantity of a part proposed for or used on a booking.
type WorkOrderPart struct {
	ID                 int64      `json:"id"`
	BookingID          int64      `json:"booking_id"`
	PartID             int64      `json:"part_id"`
	CategoryID         *int64     `json:"category_id,omitempty"`
	QuantityUsed       int64      `json:"quantity_used"`
	Status             PartStatus `json:"status"`
	IsCustomerSupplied bool       `json:"is_customer_supplied"`
	SourceOrderItemID  *int64     `json:"source_order_item_id,omitempty"`
	ApprovedByStaffID  *int64     `json:"approved_by_staff_id,omitempty"`
	ConsumedAt         *time.Time `json:"consumed_at,omitempty"`
	Notes              string     `json:"notes,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Editable reports whether quantity and notes may still change.
func (p *WorkOrderPart) Editable() bool {
	return p.Status == PartDraft || p.Status == PartPendingApproval
}
