package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"wellness-agent/internal/domain"
)

func ratePK(identifier string) string {
	return "RATE#" + identifier
}

func rateSK(action string) string {
	return "ACTION#" + action
}

// GetWindow reads the counter row with a strongly consistent read.
func (c *Client) GetWindow(ctx context.Context, identifier, action string) (domain.RateWindow, bool, error) {
	item, err := c.getItem(ctx, ratePK(identifier), rateSK(action))
	if err != nil {
		return domain.RateWindow{}, false, fmt.Errorf("repository: GetWindow get item: %w", err)
	}
	if item == nil {
		return domain.RateWindow{}, false, nil
	}
	count, err := intAttr(item, "count")
	if err != nil {
		return domain.RateWindow{}, false, fmt.Errorf("repository: GetWindow decode count: %w", err)
	}
	startMs, err := int64Attr(item, "windowStart")
	if err != nil {
		return domain.RateWindow{}, false, fmt.Errorf("repository: GetWindow decode windowStart: %w", err)
	}
	return domain.RateWindow{
		Identifier:  identifier,
		Action:      action,
		Count:       count,
		WindowStart: time.UnixMilli(startMs).UTC(),
	}, true, nil
}

// IncrementWindow adds one iff the row still has windowStart and is under
// limit. "count" is a reserved word, hence the name placeholder.
func (c *Client) IncrementWindow(ctx context.Context, identifier, action string, windowStart time.Time, limit int) (bool, error) {
	_, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                aws.String(c.tableName),
		Key:                      c.key(ratePK(identifier), rateSK(action)),
		UpdateExpression:         aws.String("SET #count = #count + :one"),
		ConditionExpression:      aws.String("windowStart = :ws AND #count < :limit"),
		ExpressionAttributeNames: map[string]string{"#count": "count"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one":   nAttr(1),
			":ws":    nAttr(windowStart.UnixMilli()),
			":limit": nAttr(int64(limit)),
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return false, nil
		}
		return false, fmt.Errorf("repository: IncrementWindow: %w", err)
	}
	return true, nil
}

// StartWindow replaces the row with count=1 at start iff it is absent
// (prev nil) or still starts at *prev.
func (c *Client) StartWindow(ctx context.Context, identifier, action string, start time.Time, prev *time.Time) (bool, error) {
	in := &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item: map[string]types.AttributeValue{
			"PK":          sAttr(ratePK(identifier)),
			"SK":          sAttr(rateSK(action)),
			"identifier":  sAttr(identifier),
			"action":      sAttr(action),
			"count":       nAttr(1),
			"windowStart": nAttr(start.UnixMilli()),
		},
	}
	if prev == nil {
		in.ConditionExpression = aws.String("attribute_not_exists(PK)")
	} else {
		in.ConditionExpression = aws.String("windowStart = :prev")
		in.ExpressionAttributeValues = map[string]types.AttributeValue{
			":prev": nAttr(prev.UnixMilli()),
		}
	}
	if _, err := c.api.PutItem(ctx, in); err != nil {
		if isConditionFailed(err) {
			return false, nil
		}
		return false, fmt.Errorf("repository: StartWindow: %w", err)
	}
	return true, nil
}
