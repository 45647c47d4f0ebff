package events

// Topic constants for domain events emitted by the platform.
const (
	TopicLoyaltySettled = "loyalty.settled"
	TopicLoyaltyApplied = "loyalty.applied"
	TopicCartCheckedOut = "cart.checked_out"
)

// DefaultTopics returns the canonical list of topics that support notifications.
func DefaultTopics() []string {
	return []string{
		TopicLoyaltySettled,
		TopicLoyaltyApplied,
		TopicCartCheckedOut,
	}
}
