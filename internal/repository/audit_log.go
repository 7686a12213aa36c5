package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"wellness-agent/internal/domain"
)

const anonymousAuditor = "anonymous"

func auditPK(userID string) string {
	if userID == "" {
		userID = anonymousAuditor
	}
	return "AUDIT#" + userID
}

// AppendAuditEntry writes an entry once. Rewriting the same id is a no-op so
// retries stay idempotent.
func (c *Client) AppendAuditEntry(ctx context.Context, e domain.AuditLogEntry) error {
	if e.ID == "" || e.Action == "" || e.CreatedAt.IsZero() {
		return errors.New("repository: AppendAuditEntry: id, action and timestamp are required")
	}
	details := make(map[string]types.AttributeValue, len(e.Details))
	for k, v := range e.Details {
		details[k] = sAttr(v)
	}
	item := map[string]types.AttributeValue{
		"PK":        sAttr(auditPK(e.UserID)),
		"SK":        sAttr(e.CreatedAt.UTC().Format(sortableTime) + "#" + e.ID),
		"id":        sAttr(e.ID),
		"userId":    sAttr(e.UserID),
		"action":    sAttr(e.Action),
		"resource":  sAttr(e.Resource),
		"severity":  sAttr(string(e.Severity)),
		"details":   &types.AttributeValueMemberM{Value: details},
		"createdAt": timeAttr(e.CreatedAt),
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return nil
		}
		return fmt.Errorf("repository: AppendAuditEntry: %w", err)
	}
	return nil
}
