package sink

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/neox5/querygauge/internal/config"
	"github.com/neox5/querygauge/internal/metric"
)

// PutMetricDataAPI is the part of the CloudWatch client used by the sink.
type PutMetricDataAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatch publishes each data point with its own PutMetricData call.
type CloudWatch struct {
	client PutMetricDataAPI
	logger *slog.Logger
}

// NewCloudWatch creates a sink using the AWS default credential chain.
func NewCloudWatch(ctx context.Context, cfg *config.CloudWatchExportConfig, logger *slog.Logger) (*CloudWatch, error) {
	var loadOptions []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOptions = append(loadOptions, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := cloudwatch.NewFromConfig(awsCfg, func(options *cloudwatch.Options) {
		if cfg.Endpoint != "" {
			options.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	logger.Info("created cloudwatch sink", "region", awsCfg.Region, "endpoint", cfg.Endpoint)
	return NewCloudWatchWithClient(client, logger), nil
}

// NewCloudWatchWithClient creates a sink around an existing client.
func NewCloudWatchWithClient(client PutMetricDataAPI, logger *slog.Logger) *CloudWatch {
	return &CloudWatch{client: client, logger: logger}
}

func (c *CloudWatch) Publish(ctx context.Context, namespace string, p metric.DataPoint) error {
	_, err := c.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(namespace),
		MetricData: []types.MetricDatum{datum(p)},
	})
	if err != nil {
		return fmt.Errorf("failed to put metric data: %w", err)
	}
	c.logger.Debug("published cloudwatch metric", "namespace", namespace, "name", p.Name, "value", p.Value)
	return nil
}

func (c *CloudWatch) Flush(context.Context) error { return nil }

func (c *CloudWatch) Close(context.Context) error { return nil }

// datum converts a data point; dimensions are emitted in sorted order.
func datum(p metric.DataPoint) types.MetricDatum {
	d := types.MetricDatum{
		MetricName: aws.String(p.Name),
		Value:      aws.Float64(float64(p.Value)),
		Unit:       types.StandardUnitCount,
	}
	if !p.Timestamp.IsZero() {
		d.Timestamp = aws.Time(p.Timestamp)
	}
	for _, k := range p.Dimensions.Keys() {
		d.Dimensions = append(d.Dimensions, types.Dimension{
			Name:  aws.String(k),
			Value: aws.String(p.Dimensions[k]),
		})
	}
	return d
}
