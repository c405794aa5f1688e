package notifications

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Notification is the message handed to the delivery service via Pub/Sub.
type Notification struct {
	TenantID   uuid.UUID                  `json:"tenant_id"`
	Audience   enums.NotificationAudience `json:"audience"`
	Type       enums.NotificationType     `json:"type"`
	CustomerID *uuid.UUID                 `json:"customer_id,omitempty"`
	Email      string                     `json:"email,omitempty"`
	Title      types.LocalizedText        `json:"title"`
	Body       types.LocalizedText        `json:"body"`
	Data       map[string]string          `json:"data,omitempty"`
}

type template struct {
	merchantTitle types.LocalizedText
	customerTitle types.LocalizedText
	bodyEN        string
	bodyAR        string
}

var templates = map[enums.NotificationType]template{
	enums.NotificationTypeOrderPlaced: {
		merchantTitle: types.NewLocalizedText("New order received", "تم استلام طلب جديد"),
		customerTitle: types.NewLocalizedText("Order placed", "تم إنشاء الطلب"),
		bodyEN:        "Order %s has been placed.",
		bodyAR:        "تم إنشاء الطلب %s.",
	},
	enums.NotificationTypeOrderDelivered: {
		merchantTitle: types.NewLocalizedText("Order delivered", "تم تسليم الطلب"),
		customerTitle: types.NewLocalizedText("Your codes are ready", "الأكواد جاهزة"),
		bodyEN:        "Order %s has been delivered.",
		bodyAR:        "تم تسليم الطلب %s.",
	},
	enums.NotificationTypeFulfillmentFailed: {
		merchantTitle: types.NewLocalizedText("Digital delivery failed", "فشل التسليم الرقمي"),
		customerTitle: types.NewLocalizedText("Delivery delayed", "تأخر التسليم"),
		bodyEN:        "Delivery for order %s failed and can be retried.",
		bodyAR:        "فشل تسليم الطلب %s ويمكن إعادة المحاولة.",
	},
	enums.NotificationTypeOrderCancelled: {
		merchantTitle: types.NewLocalizedText("Order cancelled", "تم إلغاء الطلب"),
		customerTitle: types.NewLocalizedText("Order cancelled", "تم إلغاء الطلب"),
		bodyEN:        "Order %s was cancelled.",
		bodyAR:        "تم إلغاء الطلب %s.",
	},
	enums.NotificationTypeOrderRejected: {
		merchantTitle: types.NewLocalizedText("Order rejected", "تم رفض الطلب"),
		customerTitle: types.NewLocalizedText("Order rejected", "تم رفض الطلب"),
		bodyEN:        "Order %s was rejected.",
		bodyAR:        "تم رفض الطلب %s.",
	},
	enums.NotificationTypeOrderRefunded: {
		merchantTitle: types.NewLocalizedText("Order refunded", "تم استرداد الطلب"),
		customerTitle: types.NewLocalizedText("Refund issued", "تم إصدار الاسترداد"),
		bodyEN:        "Order %s was refunded.",
		bodyAR:        "تم استرداد الطلب %s.",
	},
}

// ForOrder builds the merchant notification and, when the order has a
// reachable customer, the customer notification for kind.
func ForOrder(kind enums.NotificationType, order *models.Order) []Notification {
	if order == nil {
		return nil
	}
	tpl, ok := templates[kind]
	if !ok {
		return nil
	}
	body := types.LocalizedText{
		EN: fmt.Sprintf(tpl.bodyEN, order.OrderNumber),
		AR: fmt.Sprintf(tpl.bodyAR, order.OrderNumber),
	}
	data := map[string]string{
		"order_id":     order.ID.String(),
		"order_number": order.OrderNumber,
		"status":       order.Status.String(),
	}

	out := []Notification{{
		TenantID: order.TenantID,
		Audience: enums.AudienceMerchant,
		Type:     kind,
		Title:    tpl.merchantTitle,
		Body:     body,
		Data:     data,
	}}

	email := ""
	if order.GuestEmail != nil {
		email = *order.GuestEmail
	}
	if order.CustomerID == nil && email == "" {
		return out
	}
	return append(out, Notification{
		TenantID:   order.TenantID,
		Audience:   enums.AudienceCustomer,
		Type:       kind,
		CustomerID: order.CustomerID,
		Email:      email,
		Title:      tpl.customerTitle,
		Body:       body,
		Data:       data,
	})
}
