package types

// CloudWatch metric names emitted at the end of each worker run.
const (
	MetricRulesLoaded    = "RulesLoaded"
	MetricRulesEligible  = "RulesEligible"
	MetricRulesEvaluated = "RulesEvaluated"
	MetricRuleErrors     = "RuleErrors"
	MetricEmailsSent     = "EmailsSent"
	MetricRunDuration    = "RunDuration"
	MetricEventOutcome   = "EventOutcome"
	MetricUpstreamError  = "UpstreamError"

	DimStatus      = "Status"
	DimProvider    = "Provider"
	DimEnvironment = "Environment"

	MetricNamespace = "TideFly"
)
