// Package queue carries single-rule trigger messages between the API and the
// alert worker over SQS.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"tidefly/internal/config"
	"tidefly/internal/types"
)

// TriggerReason explains why a single rule was queued for evaluation.
type TriggerReason string

const (
	ReasonUserRequest    TriggerReason = "user_request"
	ReasonScheduled      TriggerReason = "scheduled"
	ReasonConditionsGood TriggerReason = "conditions_good"
)

// Valid reports whether r is one of the known reasons.
func (r TriggerReason) Valid() bool {
	switch r {
	case ReasonUserRequest, ReasonScheduled, ReasonConditionsGood:
		return true
	}
	return false
}

// TriggerMessage asks the worker to evaluate one rule outside the schedule.
type TriggerMessage struct {
	TriggerID   string        `json:"trigger_id"`
	RuleID      string        `json:"rule_id"`
	Reason      TriggerReason `json:"reason"`
	RequestedAt time.Time     `json:"requested_at"`
}

// ParseTriggerMessage decodes an SQS message body.
func ParseTriggerMessage(body string) (*TriggerMessage, error) {
	var msg TriggerMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidJSON, "malformed trigger message", err)
	}
	if msg.RuleID == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "trigger message has no rule_id", nil)
	}
	if msg.Reason == "" {
		msg.Reason = ReasonScheduled
	}
	return &msg, nil
}

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// RuleTrigger publishes TriggerMessages to the trigger queue.
type RuleTrigger struct {
	client   SQSSender
	queueURL string
	clock    types.Clock
	logger   *slog.Logger
}

// NewRuleTrigger creates a RuleTrigger for the configured queue.
func NewRuleTrigger(client SQSSender, cfg config.QueueConfig, clock types.Clock, logger *slog.Logger) *RuleTrigger {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RuleTrigger{
		client:   client,
		queueURL: cfg.TriggerQueueURL,
		clock:    clock,
		logger:   logger,
	}
}

// TriggerRule enqueues a single-rule evaluation and returns the trigger ID.
func (t *RuleTrigger) TriggerRule(ctx context.Context, ruleID string, reason TriggerReason) (string, error) {
	if t.queueURL == "" {
		return "", types.NewAppError(types.ErrCodeUpstreamQueue, "trigger queue is not configured", nil)
	}
	msg := TriggerMessage{
		TriggerID:   uuid.New().String(),
		RuleID:      ruleID,
		Reason:      reason,
		RequestedAt: t.clock.Now(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("queue: failed to marshal TriggerMessage: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(t.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"reason": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(reason)),
			},
		},
	}

	if _, err := t.client.SendMessage(ctx, input); err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamQueue,
			fmt.Sprintf("failed to send trigger to %s", t.queueURL), err)
	}

	t.logger.InfoContext(ctx, "trigger message sent",
		"queue_url", t.queueURL,
		"trigger_id", msg.TriggerID,
		"rule_id", ruleID,
		"reason", string(reason),
	)
	return msg.TriggerID, nil
}
