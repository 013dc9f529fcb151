package events

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// snsAPI is the slice of the SNS client the publisher uses.
type snsAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSConfig configures an [SNSPublisher].
type SNSConfig struct {
	TopicARN string
	Region   string

	// Optional static credentials, used mainly against LocalStack. When
	// empty, the default AWS credential chain applies.
	AccessKeyID     string
	SecretAccessKey string

	// EndpointURL overrides the SNS endpoint (LocalStack again).
	EndpointURL string
}

// SNSPublisher fans events out through an SNS topic. Message attributes
// carry the event type, id, and source so subscribers can filter without
// parsing the body.
type SNSPublisher struct {
	client   snsAPI
	topicARN string
}

// NewSNSPublisher builds a publisher from the default AWS credential
// chain, honoring the overrides in cfg.
func NewSNSPublisher(ctx context.Context, cfg SNSConfig) (*SNSPublisher, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}

	client := sns.NewFromConfig(awsCfg, func(o *sns.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		}
	})

	return &SNSPublisher{client: client, topicARN: cfg.TopicARN}, nil
}

// NewSNSPublisherWithClient injects a custom client, mainly for tests.
func NewSNSPublisherWithClient(client snsAPI, topicARN string) *SNSPublisher {
	return &SNSPublisher{client: client, topicARN: topicARN}
}

func (p *SNSPublisher) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	attr := func(v string) types.MessageAttributeValue {
		return types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(v),
		}
	}

	_, err = p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": attr(event.EventType),
			"event_id":   attr(event.Metadata.EventID),
			"source":     attr(event.Metadata.Source),
		},
	})
	return err
}

// Close satisfies [Publisher]; the SNS client holds no connection state.
func (p *SNSPublisher) Close() error { return nil }
