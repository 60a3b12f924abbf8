package aws

import (
	"context"
	"fmt"
	"sort"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Metrics publishes count metrics to CloudWatch.
type Metrics struct {
	CloudWatch CloudWatchAPI
	Namespace  string
	nowFunc    func() time.Time
}

// NewMetrics returns a Metrics publisher for namespace.
func NewMetrics(client CloudWatchAPI, namespace string) *Metrics {
	return &Metrics{
		CloudWatch: client,
		Namespace:  namespace,
		nowFunc:    time.Now,
	}
}

// Increment records a single count of metric with the given dimensions.
func (m *Metrics) Increment(ctx context.Context, metric string, dimensions map[string]string) error {
	dims := make([]cwtypes.Dimension, 0, len(dimensions))
	for name, value := range dimensions {
		dims = append(dims, cwtypes.Dimension{Name: String(name), Value: String(value)})
	}
	sort.Slice(dims, func(i, j int) bool { return *dims[i].Name < *dims[j].Name })

	_, err := m.CloudWatch.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: &m.Namespace,
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: String(metric),
				Dimensions: dims,
				Timestamp:  sdkaws.Time(m.nowFunc().UTC()),
				Unit:       cwtypes.StandardUnitCount,
				Value:      sdkaws.Float64(1),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("put metric data %s: %w", metric, err)
	}
	return nil
}
