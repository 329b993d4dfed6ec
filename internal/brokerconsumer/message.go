// Package brokerconsumer owns the site-request broker wire contract and the
// retry/DLX topology described in §4.10/§6: a durable direct exchange with a
// main queue, a TTL-bound delay queue that dead-letters back to the main
// queue, and a fanout DLX feeding a terminal dead-letter queue.
package brokerconsumer

// SiteRequestMessage is the JSON payload the email worker publishes and the
// broker consumer unmarshals before calling the ingest endpoint.
type SiteRequestMessage struct {
	MessageID   string `json:"message_id"`
	Phone       string `json:"phone"`
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Name        string `json:"name"`
	Comment     string `json:"comment"`
}
