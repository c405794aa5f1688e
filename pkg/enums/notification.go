package enums

import "fmt"

// NotificationType identifies the order lifecycle moment being announced.
type NotificationType string

const (
	NotificationTypeOrderPlaced       NotificationType = "order_placed"
	NotificationTypeOrderDelivered    NotificationType = "order_delivered"
	NotificationTypeFulfillmentFailed NotificationType = "fulfillment_failed"
	NotificationTypeOrderCancelled    NotificationType = "order_cancelled"
	NotificationTypeOrderRejected     NotificationType = "order_rejected"
	NotificationTypeOrderRefunded     NotificationType = "order_refunded"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeOrderPlaced,
	NotificationTypeOrderDelivered,
	NotificationTypeFulfillmentFailed,
	NotificationTypeOrderCancelled,
	NotificationTypeOrderRejected,
	NotificationTypeOrderRefunded,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}

// NotificationAudience selects who receives a notification.
type NotificationAudience string

const (
	AudienceMerchant NotificationAudience = "merchant"
	AudienceCustomer NotificationAudience = "customer"
)
