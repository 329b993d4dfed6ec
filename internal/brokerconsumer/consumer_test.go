package brokerconsumer

import (
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
)

func TestRetryCountFromHeadersMissing(t *testing.T) {
	if got := retryCountFromHeaders(amqp.Table{}); got != 0 {
		t.Fatalf("retryCountFromHeaders(empty) = %d, want 0", got)
	}
}

func TestRetryCountFromHeadersInt32(t *testing.T) {
	headers := amqp.Table{"x-retry-count": int32(3)}
	if got := retryCountFromHeaders(headers); got != 3 {
		t.Fatalf("retryCountFromHeaders = %d, want 3", got)
	}
}

func TestRetryCountFromHeadersInt64(t *testing.T) {
	headers := amqp.Table{"x-retry-count": int64(2)}
	if got := retryCountFromHeaders(headers); got != 2 {
		t.Fatalf("retryCountFromHeaders = %d, want 2", got)
	}
}

func TestRetryCountFromHeadersUnknownType(t *testing.T) {
	headers := amqp.Table{"x-retry-count": "not-a-number"}
	if got := retryCountFromHeaders(headers); got != 0 {
		t.Fatalf("retryCountFromHeaders = %d, want 0 for unrecognized type", got)
	}
}
