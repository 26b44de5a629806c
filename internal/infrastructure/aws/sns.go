package aws

import (
	"context"
	"encoding/json"
	"fmt"

	"jazzcash-gateway/internal/domain"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

type snsAPI interface {
	Publish(ctx context.Context, in *sns.PublishInput, opts ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// EventPublisher sends payment events to an SNS topic.
type EventPublisher struct {
	client   snsAPI
	topicARN string
}

func NewEventPublisher(cfg sdkaws.Config, topicARN string) *EventPublisher {
	return &EventPublisher{client: sns.NewFromConfig(cfg), topicARN: topicARN}
}

func (p *EventPublisher) Publish(ctx context.Context, event domain.PaymentEvent) error {
	msg, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal payment event: %w", err)
	}

	_, err = p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: sdkaws.String(p.topicARN),
		Message:  sdkaws.String(string(msg)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {
				DataType:    sdkaws.String("String"),
				StringValue: sdkaws.String(event.Type),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("sns publish failed for topic %s: %w", p.topicARN, err)
	}
	return nil
}
