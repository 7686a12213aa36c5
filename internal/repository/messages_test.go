package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"wellness-agent/internal/domain"
)

func turn(userID string, at time.Time, n int) (domain.Message, domain.Message) {
	user := domain.Message{
		ID:        fmt.Sprintf("u-%d", n),
		UserID:    userID,
		Role:      domain.RoleUser,
		Content:   fmt.Sprintf("question %d", n),
		CreatedAt: at,
	}
	reply := domain.Message{
		ID:        fmt.Sprintf("a-%d", n),
		UserID:    userID,
		Role:      domain.RoleAssistant,
		Content:   fmt.Sprintf("answer %d", n),
		CreatedAt: at.Add(time.Millisecond),
		Model:     "gpt-4o-mini",
		Tokens:    120,
		Cost:      0.00018,
	}
	return user, reply
}

func TestSaveTurnAndGetRecentMessages(t *testing.T) {
	db := newMemTable()
	c := mustNewClient(t, db)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		u, a := turn("user-1", base.Add(time.Duration(i)*time.Minute), i)
		require.NoError(t, c.SaveTurn(ctx, u, a))
	}
	u, a := turn("user-2", base, 99)
	require.NoError(t, c.SaveTurn(ctx, u, a))

	msgs, err := c.GetRecentMessages(ctx, "user-1", 3)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.Equal(t, "answer 2", msgs[0].Content)
	require.Equal(t, "question 3", msgs[1].Content)
	require.Equal(t, "answer 3", msgs[2].Content)
	require.Equal(t, domain.RoleAssistant, msgs[2].Role)
	require.Equal(t, "gpt-4o-mini", msgs[2].Model)
	require.Equal(t, 120, msgs[2].Tokens)
	require.InDelta(t, 0.00018, msgs[2].Cost, 1e-9)
	require.True(t, msgs[1].CreatedAt.Equal(base.Add(3*time.Minute)))
}

func TestSaveTurn_DuplicateIsConflict(t *testing.T) {
	c := mustNewClient(t, newMemTable())
	u, a := turn("user-1", time.Now(), 1)
	require.NoError(t, c.SaveTurn(context.Background(), u, a))
	err := c.SaveTurn(context.Background(), u, a)
	require.ErrorIs(t, err, domain.ErrConflict)
}

func TestSaveTurn_RequiresKeys(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)
	u, a := turn("user-1", time.Now(), 1)
	a.ID = ""
	require.Error(t, c.SaveTurn(context.Background(), u, a))
	require.Nil(t, db.lastTxInput)
}

func TestSaveTurn_TransactionError(t *testing.T) {
	db := &fakeDynamo{txErr: errors.New("throttled")}
	c := mustNewClient(t, db)
	u, a := turn("user-1", time.Now(), 1)
	err := c.SaveTurn(context.Background(), u, a)
	require.Error(t, err)
	require.NotErrorIs(t, err, domain.ErrConflict)
	require.Len(t, db.lastTxInput.TransactItems, 2)
	ttl := db.lastTxInput.TransactItems[0].Put.Item["ttl"].(*types.AttributeValueMemberN).Value
	require.Equal(t, fmt.Sprintf("%d", c.now().Add(messageTTL).Unix()), ttl)
}

func TestGetRecentMessages_QueryError(t *testing.T) {
	db := &fakeDynamo{queryErr: errors.New("boom")}
	c := mustNewClient(t, db)
	_, err := c.GetRecentMessages(context.Background(), "user-1", 5)
	require.ErrorContains(t, err, "GetRecentMessages")
}

func TestGetRecentMessages_NonPositiveLimit(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)
	msgs, err := c.GetRecentMessages(context.Background(), "user-1", 0)
	require.NoError(t, err)
	require.Empty(t, msgs)
	require.Nil(t, db.lastQueryIn)
}

func TestGetRecentMessages_MalformedItem(t *testing.T) {
	db := newMemTable()
	db.items["USER#user-1|MSG#x"] = map[string]types.AttributeValue{
		"PK": sAttr("USER#user-1"),
		"SK": sAttr("MSG#x"),
		"id": sAttr("x"),
	}
	c := mustNewClient(t, db)
	_, err := c.GetRecentMessages(context.Background(), "user-1", 5)
	require.ErrorContains(t, err, "unmarshal")
}
