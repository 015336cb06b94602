package models

// Technician works at one center and covers a set of services.
type Technician struct {
	ID         int64   `yaml:"id" json:"id"`
	CenterID   int64   `yaml:"center_id" json:"center_id"`
	Name       string  `yaml:"name" json:"name"`
	ServiceIDs []int64 `yaml:"service_ids" json:"service_ids"`
	IsActive   bool    `yaml:"is_active" json:"is_active"`
}

// Covers reports whether the technician performs every service in ids.
func (t *Technician) Covers(ids []int64) bool {
	for _, want := range ids {
		found := false
		for _, have := range t.ServiceIDs {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// TimeSlot is an entry of the daily slot grid shared by all centers.
type TimeSlot struct {
	ID        int64  `yaml:"id" json:"id"`
	StartTime string `yaml:"start_time" json:"start_time"`
	EndTime   string `yaml:"end_time" json:"end_time"`
}

type Part struct {
	ID         int64  `yaml:"id" json:"id"`
	Name       string `yaml:"name" json:"name"`
	CategoryID int64  `yaml:"category_id" json:"category_id"`
	UnitPrice  int64  `yaml:"unit_price" json:"unit_price"`
}

type InventoryPart struct {
	CenterID     int64 `yaml:"center_id" json:"center_id"`
	PartID       int64 `yaml:"part_id" json:"part_id"`
	CurrentStock int64 `yaml:"current_stock" json:"current_stock"`
	ReservedQty  int64 `yaml:"reserved_qty" json:"reserved_qty"`
	MinimumStock int64 `yaml:"minimum_stock" json:"minimum_stock"`
}

// BelowMinimum reports whether the row needs restocking.
func (p *InventoryPart) BelowMinimum() bool {
	return p.CurrentStock < p.MinimumStock
}

type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderPaid      OrderStatus = "PAID"
	OrderCancelled OrderStatus = "CANCELLED"
)

// Order is a customer's parts purchase, owned by order fulfillment.
type Order struct {
	ID                  int64       `yaml:"id" json:"id"`
	CustomerID          int64       `yaml:"customer_id" json:"customer_id"`
	Status              OrderStatus `yaml:"status" json:"status"`
	FulfillmentCenterID int64       `yaml:"fulfillment_center_id" json:"fulfillment_center_id"`
}

type OrderItem struct {
	ID          int64 `yaml:"id" json:"id"`
	OrderID     int64 `yaml:"order_id" json:"order_id"`
	PartID      int64 `yaml:"part_id" json:"part_id"`
	Quantity    int64 `yaml:"quantity" json:"quantity"`
	ConsumedQty int64 `yaml:"consumed_qty" json:"consumed_qty"`
}

func (i *OrderItem) Remaining() int64 {
	return i.Quantity - i.ConsumedQty
}
