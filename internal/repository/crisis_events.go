package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"wellness-agent/internal/domain"
)

const skCrisisMeta = "META#"

func crisisPK(id string) string {
	return "CRISIS#" + id
}

// CreateCrisisEvent writes a new event. Events are never overwritten; a
// second write with the same id returns domain.ErrConflict.
func (c *Client) CreateCrisisEvent(ctx context.Context, ev domain.CrisisEvent) error {
	if ev.ID == "" || ev.UserID == "" {
		return errors.New("repository: CreateCrisisEvent: id and user id are required")
	}
	item := map[string]types.AttributeValue{
		"PK":                 sAttr(crisisPK(ev.ID)),
		"SK":                 sAttr(skCrisisMeta),
		"id":                 sAttr(ev.ID),
		"userId":             sAttr(ev.UserID),
		"level":              sAttr(ev.Level.String()),
		"message":            sAttr(ev.Message),
		"actionTaken":        sAttr(ev.ActionTaken),
		"resolved":           bAttr(ev.Resolved),
		"emergencyContacted": bAttr(ev.EmergencyContacted),
		"createdAt":          timeAttr(ev.CreatedAt),
		"updatedAt":          timeAttr(ev.UpdatedAt),
	}
	if ev.EmergencyContactID != "" {
		item["emergencyContactId"] = sAttr(ev.EmergencyContactID)
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("repository: CreateCrisisEvent %s: %w", ev.ID, domain.ErrConflict)
		}
		return fmt.Errorf("repository: CreateCrisisEvent: %w", err)
	}
	return nil
}

// GetCrisisEvent loads an event by id.
func (c *Client) GetCrisisEvent(ctx context.Context, id string) (domain.CrisisEvent, error) {
	item, err := c.getItem(ctx, crisisPK(id), skCrisisMeta)
	if err != nil {
		return domain.CrisisEvent{}, fmt.Errorf("repository: GetCrisisEvent get item: %w", err)
	}
	if item == nil {
		return domain.CrisisEvent{}, fmt.Errorf("repository: GetCrisisEvent %s: %w", id, domain.ErrNotFound)
	}
	ev, err := itemToCrisisEvent(item)
	if err != nil {
		return domain.CrisisEvent{}, fmt.Errorf("repository: GetCrisisEvent unmarshal: %w", err)
	}
	return ev, nil
}

// MarkEmergencyContacted sets the contacted flag. Level and message are not
// touched.
func (c *Client) MarkEmergencyContacted(ctx context.Context, id, contactID string, at time.Time) error {
	_, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(c.tableName),
		Key:                 c.key(crisisPK(id), skCrisisMeta),
		UpdateExpression:    aws.String("SET emergencyContacted = :true, emergencyContactId = :cid, updatedAt = :at"),
		ConditionExpression: aws.String("attribute_exists(PK)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":true": bAttr(true),
			":cid":  sAttr(contactID),
			":at":   timeAttr(at),
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("repository: MarkEmergencyContacted %s: %w", id, domain.ErrNotFound)
		}
		return fmt.Errorf("repository: MarkEmergencyContacted: %w", err)
	}
	return nil
}

// SetEmergencyContactID records which contact an escalation targeted
// without setting the contacted flag. Used when delivery failed.
func (c *Client) SetEmergencyContactID(ctx context.Context, id, contactID string, at time.Time) error {
	_, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(c.tableName),
		Key:                 c.key(crisisPK(id), skCrisisMeta),
		UpdateExpression:    aws.String("SET emergencyContactId = :cid, updatedAt = :at"),
		ConditionExpression: aws.String("attribute_exists(PK)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":cid": sAttr(contactID),
			":at":  timeAttr(at),
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("repository: SetEmergencyContactID %s: %w", id, domain.ErrNotFound)
		}
		return fmt.Errorf("repository: SetEmergencyContactID: %w", err)
	}
	return nil
}

// MarkResolved flips an open event to resolved. It reports false when the
// event was already resolved or does not exist.
func (c *Client) MarkResolved(ctx context.Context, id string, at time.Time) (bool, error) {
	_, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(c.tableName),
		Key:                 c.key(crisisPK(id), skCrisisMeta),
		UpdateExpression:    aws.String("SET resolved = :true, updatedAt = :at"),
		ConditionExpression: aws.String("attribute_exists(PK) AND resolved = :false"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":true":  bAttr(true),
			":false": bAttr(false),
			":at":    timeAttr(at),
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return false, nil
		}
		return false, fmt.Errorf("repository: MarkResolved: %w", err)
	}
	return true, nil
}

func itemToCrisisEvent(item map[string]types.AttributeValue) (domain.CrisisEvent, error) {
	id, err := strAttr(item, "id")
	if err != nil {
		return domain.CrisisEvent{}, err
	}
	userID, err := strAttr(item, "userId")
	if err != nil {
		return domain.CrisisEvent{}, err
	}
	levelStr, err := strAttr(item, "level")
	if err != nil {
		return domain.CrisisEvent{}, err
	}
	level, err := domain.ParseCrisisLevel(levelStr)
	if err != nil {
		return domain.CrisisEvent{}, err
	}
	message, err := strAttr(item, "message")
	if err != nil {
		return domain.CrisisEvent{}, err
	}
	createdAt, err := timeAttrValue(item, "createdAt")
	if err != nil {
		return domain.CrisisEvent{}, err
	}
	updatedAt, err := timeAttrValue(item, "updatedAt")
	if err != nil {
		return domain.CrisisEvent{}, err
	}
	action, _ := optStrAttr(item, "actionTaken")
	contactID, _ := optStrAttr(item, "emergencyContactId")

	return domain.CrisisEvent{
		ID:                 id,
		UserID:             userID,
		Level:              level,
		Message:            message,
		ActionTaken:        action,
		Resolved:           boolAttr(item, "resolved"),
		EmergencyContacted: boolAttr(item, "emergencyContacted"),
		EmergencyContactID: contactID,
		CreatedAt:          createdAt,
		UpdatedAt:          updatedAt,
	}, nil
}
