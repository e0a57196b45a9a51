// internal/common/aws/ses.go

// Package aws holds the thin AWS clients behind the notification
// channels: SES carries email alerts, SNS carries SMS alerts. Both
// satisfy the sender interfaces in internal/pipeline/notify, which is
// also where message composition lives.
package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
)

// SESClient sends the email alert channel's messages through Amazon SES.
type SESClient struct {
	client *ses.Client
}

// NewSESClient resolves credentials from the default AWS chain for the
// given region.
func NewSESClient(ctx context.Context, region string) (*SESClient, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return &SESClient{client: ses.NewFromConfig(cfg)}, nil
}

// SendEmail delivers one composed event alert to a recipient inbox.
func (s *SESClient) SendEmail(ctx context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error) {
	return s.client.SendEmail(ctx, input)
}
