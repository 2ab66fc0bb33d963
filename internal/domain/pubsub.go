package domain

// Publisher accepts insight updates from producers. Publish never blocks on
// delivery and never reports failure to the producer.
type Publisher interface {
	Publish(update Update)
}
