package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"wellness-agent/internal/domain"
)

func sampleEntry() domain.AuditLogEntry {
	return domain.AuditLogEntry{
		ID:        "a-1",
		UserID:    "user-1",
		Action:    "crisis_event.created",
		Resource:  "crisis_event:ev-1",
		Severity:  domain.SeverityHigh,
		Details:   map[string]string{"level": "CRITICAL"},
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestAppendAuditEntry_IdempotentByID(t *testing.T) {
	db := newMemTable()
	c := mustNewClient(t, db)
	ctx := context.Background()

	require.NoError(t, c.AppendAuditEntry(ctx, sampleEntry()))
	require.NoError(t, c.AppendAuditEntry(ctx, sampleEntry()))
	require.Len(t, db.items, 1)

	for _, item := range db.items {
		require.Equal(t, "AUDIT#user-1", item["PK"].(*types.AttributeValueMemberS).Value)
		details := item["details"].(*types.AttributeValueMemberM).Value
		require.Equal(t, "CRITICAL", details["level"].(*types.AttributeValueMemberS).Value)
	}
}

func TestAppendAuditEntry_AnonymousPartition(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)
	e := sampleEntry()
	e.UserID = ""
	require.NoError(t, c.AppendAuditEntry(context.Background(), e))
	require.Equal(t, "AUDIT#anonymous", db.lastPutInput.Item["PK"].(*types.AttributeValueMemberS).Value)
}

func TestAppendAuditEntry_Validation(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{})
	e := sampleEntry()
	e.CreatedAt = time.Time{}
	require.Error(t, c.AppendAuditEntry(context.Background(), e))
}

func TestAppendAuditEntry_PutError(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{putErr: errors.New("boom")})
	require.ErrorContains(t, c.AppendAuditEntry(context.Background(), sampleEntry()), "AppendAuditEntry")
}
