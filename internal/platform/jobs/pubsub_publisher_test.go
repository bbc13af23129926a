package jobs

import (
	"context"
	"errors"
	"testing"
)

func TestNewPubSubOrderPublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubOrderPublisher(nil); err == nil {
		t.Fatalf("expected error for nil topic")
	}
}

func TestPublishOrderRecordedWithoutTopic(t *testing.T) {
	publisher := &PubSubOrderPublisher{
		marshal: func(any) ([]byte, error) { return nil, errors.New("boom") },
	}

	if _, err := publisher.PublishOrderRecorded(context.Background(), OrderRecordedMessage{OrderID: "ord-1"}); err == nil {
		t.Fatalf("expected error when publisher is not initialised")
	}
}
