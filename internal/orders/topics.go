package orders

const (
	TopicOrderCreated       = "order.created"
	TopicOrderStatusChanged = "order.status.changed"
	TopicOrderPaid          = "order.paid"
)

var topicByEvent = map[string]string{
	EventOrderCreated:       TopicOrderCreated,
	EventOrderStatusChanged: TopicOrderStatusChanged,
	EventOrderPaid:          TopicOrderPaid,
}

// TopicFor returns "" for unknown event types.
func TopicFor(eventType string) string { return topicByEvent[eventType] }

// Topics lists every topic the order service writes to.
func Topics() []string {
	return []string{TopicOrderCreated, TopicOrderStatusChanged, TopicOrderPaid}
}

// Partition key = order_id, supaya semua event 1 order maintain urutan.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
