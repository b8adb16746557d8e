package delivery

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESSender delivers email through Amazon SES.
type SESSender struct {
	client   *ses.Client
	fromAddr string
}

// NewSESSender builds an SES-backed sender using the default AWS credential
// chain for the given region.
func NewSESSender(ctx context.Context, region, fromAddr string) (*SESSender, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &SESSender{client: ses.NewFromConfig(cfg), fromAddr: fromAddr}, nil
}

func (s *SESSender) Send(ctx context.Context, to, subject, htmlBody, textBody string) error {
	_, err := s.client.SendEmail(ctx, &ses.SendEmailInput{
		Source:      &s.fromAddr,
		Destination: &types.Destination{ToAddresses: []string{to}},
		Message: &types.Message{
			Subject: &types.Content{Data: &subject},
			Body: &types.Body{
				Html: &types.Content{Data: &htmlBody},
				Text: &types.Content{Data: &textBody},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send to %s: %w", to, err)
	}
	return nil
}

var _ Sender = (*SESSender)(nil)
