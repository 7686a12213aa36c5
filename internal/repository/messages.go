package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"wellness-agent/internal/domain"
)

const (
	skPrefixMsg    = "MSG#"
	messageTTL     = 90 * 24 * time.Hour
	costPrecision  = 6
	maxHistorySize = 100
)

func userPK(userID string) string {
	return "USER#" + userID
}

func msgSK(ts time.Time, id string) string {
	return skPrefixMsg + ts.UTC().Format(sortableTime) + "#" + id
}

// GetRecentMessages returns up to limit of the newest messages for a user in
// chronological order.
func (c *Client) GetRecentMessages(ctx context.Context, userID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	if limit > maxHistorySize {
		limit = maxHistorySize
	}
	out, err := c.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     sAttr(userPK(userID)),
			":prefix": sAttr(skPrefixMsg),
		},
		// Read newest first so LIMIT favors the most recent context.
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: GetRecentMessages query: %w", err)
	}

	msgs := make([]domain.Message, 0, len(out.Items))
	for _, item := range out.Items {
		msg, err := itemToMessage(item)
		if err != nil {
			return nil, fmt.Errorf("repository: GetRecentMessages unmarshal: %w", err)
		}
		msgs = append(msgs, msg)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// SaveTurn writes the user message and the reply in one transaction.
func (c *Client) SaveTurn(ctx context.Context, user, reply domain.Message) error {
	for _, m := range []domain.Message{user, reply} {
		if m.ID == "" || m.UserID == "" || m.CreatedAt.IsZero() {
			return errors.New("repository: SaveTurn: message id, user id and timestamp are required")
		}
	}
	ttl := c.now().Add(messageTTL).Unix()
	_, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:           aws.String(c.tableName),
				Item:                messageItem(user, ttl),
				ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
			}},
			{Put: &types.Put{
				TableName:           aws.String(c.tableName),
				Item:                messageItem(reply, ttl),
				ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
			}},
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("repository: SaveTurn: %w", domain.ErrConflict)
		}
		return fmt.Errorf("repository: SaveTurn: %w", err)
	}
	return nil
}

func messageItem(m domain.Message, ttl int64) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"PK":        sAttr(userPK(m.UserID)),
		"SK":        sAttr(msgSK(m.CreatedAt, m.ID)),
		"id":        sAttr(m.ID),
		"userId":    sAttr(m.UserID),
		"role":      sAttr(string(m.Role)),
		"content":   sAttr(m.Content),
		"createdAt": timeAttr(m.CreatedAt),
		"tokens":    nAttr(int64(m.Tokens)),
		"cost":      &types.AttributeValueMemberN{Value: strconv.FormatFloat(m.Cost, 'f', costPrecision, 64)},
		"ttl":       nAttr(ttl),
	}
	if m.SessionID != "" {
		item["sessionId"] = sAttr(m.SessionID)
	}
	if m.Model != "" {
		item["model"] = sAttr(m.Model)
	}
	return item
}

func itemToMessage(item map[string]types.AttributeValue) (domain.Message, error) {
	id, err := strAttr(item, "id")
	if err != nil {
		return domain.Message{}, err
	}
	userID, err := strAttr(item, "userId")
	if err != nil {
		return domain.Message{}, err
	}
	role, err := strAttr(item, "role")
	if err != nil {
		return domain.Message{}, err
	}
	content, err := strAttr(item, "content")
	if err != nil {
		return domain.Message{}, err
	}
	createdAt, err := timeAttrValue(item, "createdAt")
	if err != nil {
		return domain.Message{}, err
	}
	sessionID, _ := optStrAttr(item, "sessionId")
	model, _ := optStrAttr(item, "model")
	tokens, _ := intAttr(item, "tokens") // allow missing

	var cost float64
	if n, ok := item["cost"].(*types.AttributeValueMemberN); ok {
		cost, _ = strconv.ParseFloat(n.Value, 64)
	}

	return domain.Message{
		ID:        id,
		UserID:    userID,
		Role:      domain.Role(role),
		Content:   content,
		CreatedAt: createdAt,
		SessionID: sessionID,
		Model:     model,
		Tokens:    tokens,
		Cost:      cost,
	}, nil
}
