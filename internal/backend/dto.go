package backend

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/go_pharmacy/internal/domain"
	"github.com/shopspring/decimal"
)

type CreateOrderItem struct {
	MedicineID int64 `json:"medicineId"`
	Quantity   int   `json:"quantity"`
}

// CreateOrderRequest carries no per-line prices; the backend snapshots them.
// TotalAmount is only a hint.
type CreateOrderRequest struct {
	UserID          int64             `json:"userId"`
	ShippingAddress string            `json:"shippingAddress"`
	Items           []CreateOrderItem `json:"items"`
	TotalAmount     decimal.Decimal   `json:"totalAmount"`
}

type OrderDetailDTO struct {
	MedicineID   int64           `json:"medicineId"`
	MedicineName string          `json:"medicineName"`
	Quantity     int             `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
}

type OrderDTO struct {
	OrderID         int64            `json:"orderId"`
	UserID          int64            `json:"userId"`
	UserName        string           `json:"userName"`
	UserEmail       string           `json:"userEmail,omitempty"`
	TotalAmount     decimal.Decimal  `json:"totalAmount"`
	CreateAt        Timestamp        `json:"createAt"`
	StatusID        int              `json:"statusId"`
	StatusName      string           `json:"statusName"`
	ShippingAddress string           `json:"shippingAddress"`
	OrderDetails    []OrderDetailDTO `json:"orderDetails"`
}

// ToDomain prefers the status name when the two disagree, since that is what
// staff see and bucket on.
func (d OrderDTO) ToDomain() domain.Order {
	status := domain.ParseStatus(d.StatusName)
	if status == domain.StatusUnknown && d.StatusName == "" {
		status = domain.StatusFromID(d.StatusID)
	}
	name := d.StatusName
	if name == "" {
		name = status.String()
	}

	details := make([]domain.OrderDetail, 0, len(d.OrderDetails))
	for _, od := range d.OrderDetails {
		details = append(details, domain.OrderDetail{
			MedicineID:   od.MedicineID,
			MedicineName: od.MedicineName,
			Quantity:     od.Quantity,
			UnitPrice:    od.Price,
		})
	}
	return domain.Order{
		ID:              d.OrderID,
		UserID:          d.UserID,
		UserName:        d.UserName,
		OwnerEmail:      d.UserEmail,
		ShippingAddress: d.ShippingAddress,
		CreatedAt:       time.Time(d.CreateAt),
		Status:          status,
		StatusName:      name,
		TotalAmount:     d.TotalAmount,
		Details:         details,
	}
}

func OrderFromDomain(o domain.Order) OrderDTO {
	details := make([]OrderDetailDTO, 0, len(o.Details))
	for _, d := range o.Details {
		details = append(details, OrderDetailDTO{
			MedicineID:   d.MedicineID,
			MedicineName: d.MedicineName,
			Quantity:     d.Quantity,
			Price:        d.UnitPrice,
		})
	}
	name := o.StatusName
	if name == "" {
		name = o.Status.String()
	}
	return OrderDTO{
		OrderID:         o.ID,
		UserID:          o.UserID,
		UserName:        o.UserName,
		UserEmail:       o.OwnerEmail,
		TotalAmount:     o.TotalAmount,
		CreateAt:        Timestamp(o.CreatedAt),
		StatusID:        int(o.Status),
		StatusName:      name,
		ShippingAddress: o.ShippingAddress,
		OrderDetails:    details,
	}
}

func ordersToDomain(dtos []OrderDTO) []domain.Order {
	orders := make([]domain.Order, 0, len(dtos))
	for _, d := range dtos {
		orders = append(orders, d.ToDomain())
	}
	return orders
}

// Timestamp accepts both RFC 3339 and zone-less local date-times.
type Timestamp time.Time

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if time.Time(t).IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(time.Time(t).UTC().Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*t = Timestamp{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			*t = Timestamp(parsed)
			return nil
		}
	}
	return fmt.Errorf("unsupported timestamp %q", s)
}
