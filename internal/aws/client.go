package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	awss3sdk "github.com/aws/aws-sdk-go-v2/service/s3"

	awsec2 "github.com/marksidell/dynips/internal/aws/ec2"
	awsroute53 "github.com/marksidell/dynips/internal/aws/route53"
	awss3 "github.com/marksidell/dynips/internal/aws/s3"
)

// ServiceClient bundles the three collaborators dynips talks to: the S3
// record store, the Route 53 directory and EC2 security groups.
type ServiceClient struct {
	Config  aws.Config
	S3      *awss3.Client
	Route53 *awsroute53.Client
	EC2     *awsec2.Client
}

func NewServiceClient(ctx context.Context, opts Options) (*ServiceClient, error) {
	cfg, err := LoadConfig(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &ServiceClient{
		Config:  cfg,
		S3:      awss3.NewClient(awss3sdk.NewFromConfig(cfg)),
		Route53: awsroute53.NewClient(route53.NewFromConfig(cfg)),
		EC2:     awsec2.NewClient(ec2.NewFromConfig(cfg)),
	}, nil
}
