package cloud

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/stitchworks/factory-pulse/internal/domain"
)

// SNSClient escalates critical alerts to an SNS topic so on-call staff get
// paged even when no dashboard is connected.
type SNSClient struct {
	svc      *sns.Client
	topicArn string
}

// NewSNSClient creates a new SNS client instance.
func NewSNSClient(region, topicArn string) (*SNSClient, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return &SNSClient{svc: sns.NewFromConfig(cfg), topicArn: topicArn}, nil
}

// Publish sends a plain notification to the configured topic.
func (c *SNSClient) Publish(ctx context.Context, subject, message string) error {
	_, err := c.svc.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(c.topicArn),
		Subject:  aws.String(subject),
		Message:  aws.String(message),
	})
	if err != nil {
		return fmt.Errorf("failed to publish to SNS: %w", err)
	}
	return nil
}

// EscalateAlert formats and sends a production alert.
func (c *SNSClient) EscalateAlert(ctx context.Context, alert domain.AlertUpdate) error {
	subject := fmt.Sprintf("Factory Alert [%s]: %s", alert.Severity, alert.Title)
	message := fmt.Sprintf(
		"%s\n\n"+
			"Type: %s\n"+
			"Severity: %s\n"+
			"Order: %s\n"+
			"Machine: %s\n"+
			"Item: %s\n"+
			"Time: %s\n",
		alert.Message,
		alert.Type,
		alert.Severity,
		alert.OrderID,
		alert.MachineID,
		alert.ItemID,
		alert.Timestamp.Format(time.RFC3339),
	)
	return c.Publish(ctx, subject, message)
}
