package core

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"tidefly/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Compile-time assertion that CloudWatchRunMetrics implements RunMetrics.
var _ RunMetrics = (*CloudWatchRunMetrics)(nil)

// CloudWatchRunMetrics emits the run rollup to AWS CloudWatch.
//
// Metrics emitted per run, all dimensioned by Environment:
//   - RulesLoaded, RulesEligible, RulesEvaluated, RuleErrors, EmailsSent
//   - EventOutcome with an extra Status dimension, one datum per status
//   - RunDuration in milliseconds
//
// Publishing failures are logged and never fail the run.
type CloudWatchRunMetrics struct {
	client      CloudWatchClient
	namespace   string
	environment string
	logger      *slog.Logger
}

// NewCloudWatchRunMetrics creates a CloudWatchRunMetrics. An empty namespace
// uses types.MetricNamespace.
func NewCloudWatchRunMetrics(client CloudWatchClient, namespace, environment string, logger *slog.Logger) *CloudWatchRunMetrics {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchRunMetrics{
		client:      client,
		namespace:   namespace,
		environment: environment,
		logger:      logger,
	}
}

func (m *CloudWatchRunMetrics) datum(name string, value float64, unit cwtypes.StandardUnit, dims ...cwtypes.Dimension) cwtypes.MetricDatum {
	return cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(value),
		Unit:       unit,
		Dimensions: append([]cwtypes.Dimension{{
			Name:  aws.String(types.DimEnvironment),
			Value: aws.String(m.environment),
		}}, dims...),
	}
}

// RecordRun publishes the run rollup in a single PutMetricData call.
func (m *CloudWatchRunMetrics) RecordRun(ctx context.Context, s RunSummary) {
	data := []cwtypes.MetricDatum{
		m.datum(types.MetricRulesLoaded, float64(s.RulesLoaded), cwtypes.StandardUnitCount),
		m.datum(types.MetricRulesEligible, float64(s.RulesEligible), cwtypes.StandardUnitCount),
		m.datum(types.MetricRulesEvaluated, float64(s.Evaluated), cwtypes.StandardUnitCount),
		m.datum(types.MetricRuleErrors, float64(s.Errors), cwtypes.StandardUnitCount),
		m.datum(types.MetricEmailsSent, float64(s.EmailsSent), cwtypes.StandardUnitCount),
		m.datum(types.MetricRunDuration, float64(s.Duration.Milliseconds()), cwtypes.StandardUnitMilliseconds),
	}
	for _, status := range types.AllEventStatuses {
		data = append(data, m.datum(types.MetricEventOutcome, float64(s.Outcomes[status]), cwtypes.StandardUnitCount,
			cwtypes.Dimension{Name: aws.String(types.DimStatus), Value: aws.String(string(status))},
		))
	}

	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	})
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to record run metrics",
			"error", err.Error(),
			"evaluated", s.Evaluated,
		)
	}
}

// RecordUpstreamError counts one failed provider call.
func (m *CloudWatchRunMetrics) RecordUpstreamError(ctx context.Context, provider string) {
	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			m.datum(types.MetricUpstreamError, 1, cwtypes.StandardUnitCount,
				cwtypes.Dimension{Name: aws.String(types.DimProvider), Value: aws.String(provider)},
			),
		},
	})
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to record upstream error metric",
			"error", err.Error(),
			"provider", provider,
		)
	}
}

// NoopRunMetrics discards all metrics. Used when METRICS_ENABLED is false.
type NoopRunMetrics struct{}

// RecordRun implements RunMetrics.
func (NoopRunMetrics) RecordRun(context.Context, RunSummary) {}

// RecordUpstreamError implements RunMetrics.
func (NoopRunMetrics) RecordUpstreamError(context.Context, string) {}
