package stats

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"orderflow/logger"
)

// CloudWatchPublisher ships stats snapshots to CloudWatch as custom
// metrics. A nil publisher (failed initialisation) is safe to call.
type CloudWatchPublisher struct {
	client    *cloudwatch.Client
	namespace string
	log       *logger.Entry
}

// NewCloudWatchPublisher initialises the CloudWatch client using the
// provided region and namespace. If region is empty it falls back to the
// AWS_REGION environment variable. When the client cannot be created the
// function logs a warning and returns nil; publishing stays disabled.
func NewCloudWatchPublisher(ctx context.Context, region, namespace string, log *logger.Log) *CloudWatchPublisher {
	l := log.WithComponent("cloudwatch")

	if region == "" {
		region = os.Getenv("AWS_REGION")
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		l.WithError(err).Warn("failed to load AWS configuration; CloudWatch metrics disabled")
		return nil
	}

	if namespace == "" {
		namespace = "Orderflow"
	}

	l.WithFields(logger.Fields{"region": region, "namespace": namespace}).Info("initialized CloudWatch client")

	return &CloudWatchPublisher{
		client:    cloudwatch.NewFromConfig(cfg),
		namespace: namespace,
		log:       l,
	}
}

// Publish sends the snapshot counters to CloudWatch. Failures are logged
// but never propagated; telemetry must not disturb the data plane.
func (p *CloudWatchPublisher) Publish(ctx context.Context, snap Snapshot) {
	if p == nil || p.client == nil {
		return
	}

	data := []cwtypes.MetricDatum{
		counterDatum("TotalMessages", float64(snap.TotalMessages)),
		counterDatum("TotalErrors", float64(snap.TotalErrors)),
		counterDatum("TotalReconnects", float64(snap.TotalReconnects)),
		counterDatum("BytesReceived", float64(snap.BytesReceived)),
		counterDatum("BytesSent", float64(snap.BytesSent)),
		{
			MetricName: aws.String("AverageLatencyMs"),
			Unit:       cwtypes.StandardUnitMilliseconds,
			Value:      aws.Float64(float64(snap.AverageLatency.Milliseconds())),
		},
		{
			MetricName: aws.String("ConnectionUptimeSeconds"),
			Unit:       cwtypes.StandardUnitSeconds,
			Value:      aws.Float64(snap.ConnectionUptime.Seconds()),
		},
	}

	if _, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(p.namespace),
		MetricData: data,
	}); err != nil {
		p.log.WithError(err).Warn("failed to publish CloudWatch metrics")
	}
}

func counterDatum(name string, value float64) cwtypes.MetricDatum {
	return cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Unit:       cwtypes.StandardUnitCount,
		Value:      aws.Float64(value),
	}
}
