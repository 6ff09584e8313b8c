package lifecycle

import (
	"fmt"

	"github.com/vaidashi/fulfillment-tracker/internal/models"
)

const signature = "FlooringInc Team"

func confirmationEmail(o *models.Order, m *models.Manufacturer) (string, string) {
	subject := fmt.Sprintf("Order %s Confirmed", o.OrderNumber)
	body := fmt.Sprintf("Dear %s,\n\nA new order %s has been assigned to %s. Please review and ship within the expected timeframe.\n\nQuantity: %d sq ft\nCustomer: %s\n\nThank you,\n%s",
		contactName(m), o.OrderNumber, m.Name, o.Quantity, o.CustomerName, signature)
	return subject, body
}

func shippingEmail(o *models.Order) (string, string) {
	subject := fmt.Sprintf("Order %s has shipped", o.OrderNumber)
	body := fmt.Sprintf("Order %s has been shipped via %s. Tracking number: %s", o.OrderNumber, o.Carrier, o.TrackingNumber)
	return subject, body
}

func delayEmail(o *models.Order, m *models.Manufacturer) (string, string) {
	subject := fmt.Sprintf("URGENT: Order %s Delayed", o.OrderNumber)
	body := fmt.Sprintf("Dear %s,\n\nOrder %s has exceeded the expected shipping window. Please provide an update on the status of this order immediately.\n\n%s",
		contactName(m), o.OrderNumber, signature)
	return subject, body
}

func reminderEmail(o *models.Order, m *models.Manufacturer) (string, string) {
	subject := fmt.Sprintf("Reminder: Ship Order %s", o.OrderNumber)
	body := fmt.Sprintf("Dear %s,\n\nThis is a friendly reminder to ship order %s at your earliest convenience.\n\n%s",
		contactName(m), o.OrderNumber, signature)
	return subject, body
}

func delayAlertText(o *models.Order) (string, string) {
	return fmt.Sprintf("Order %s is delayed", o.OrderNumber),
		fmt.Sprintf("Order has exceeded expected fulfillment time. Customer %s may need to be notified.", o.CustomerName)
}

func overdueAlertText(o *models.Order) (string, string) {
	return fmt.Sprintf("Order %s overdue for shipment", o.OrderNumber),
		"Manufacturer has not shipped this order within the expected timeframe."
}

func escalationAlertText(o *models.Order) (string, string) {
	return fmt.Sprintf("Order %s Escalated", o.OrderNumber),
		fmt.Sprintf("Order %s for %s has been escalated and requires immediate attention.", o.OrderNumber, o.CustomerName)
}

func contactName(m *models.Manufacturer) string {
	if m.ContactName != "" {
		return m.ContactName
	}
	return m.Name
}
