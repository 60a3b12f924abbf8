package aws

import (
	"context"
	"fmt"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
)

const defaultRegion = "us-east-1"

// ConfigOptions carries the settings read from the process configuration.
type ConfigOptions struct {
	Region string
	// EndpointOverride points every client at a local emulator such as LocalStack.
	EndpointOverride string
}

func LoadAWSConfig(ctx context.Context, opts ConfigOptions) (sdkaws.Config, error) {
	region := opts.Region
	if region == "" {
		region = defaultRegion // default fallback
	}

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if opts.EndpointOverride != "" {
		loadOpts = append(loadOpts, config.WithBaseEndpoint(opts.EndpointOverride))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return cfg, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return cfg, nil
}
