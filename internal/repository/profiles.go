package repository

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"wellness-agent/internal/domain"
)

const skProfile = "PROFILE#"

// GetProfile loads a user's profile. A missing profile is domain.ErrNotFound.
func (c *Client) GetProfile(ctx context.Context, userID string) (domain.UserProfile, error) {
	item, err := c.getItem(ctx, userPK(userID), skProfile)
	if err != nil {
		return domain.UserProfile{}, fmt.Errorf("repository: GetProfile get item: %w", err)
	}
	if item == nil {
		return domain.UserProfile{}, fmt.Errorf("repository: GetProfile %s: %w", userID, domain.ErrNotFound)
	}
	return itemToProfile(userID, item), nil
}

// EmergencyContactID returns the contact on file, or "" if there is none.
func (c *Client) EmergencyContactID(ctx context.Context, userID string) (string, error) {
	item, err := c.getItem(ctx, userPK(userID), skProfile)
	if err != nil {
		return "", fmt.Errorf("repository: EmergencyContactID get item: %w", err)
	}
	if item == nil {
		return "", nil
	}
	id, err := optStrAttr(item, "emergencyContactId")
	if err != nil {
		return "", fmt.Errorf("repository: EmergencyContactID: %w", err)
	}
	return id, nil
}

func itemToProfile(userID string, item map[string]types.AttributeValue) domain.UserProfile {
	name, _ := optStrAttr(item, "displayName")
	contact, _ := optStrAttr(item, "emergencyContactId")

	var triggers []domain.TriggerCategory
	for _, s := range listAttrValue(item, "knownTriggers") {
		if t, err := domain.ParseTriggerCategory(s); err == nil {
			triggers = append(triggers, t)
		}
	}
	return domain.UserProfile{
		UserID:                 userID,
		DisplayName:            name,
		EffectiveTechniques:    listAttrValue(item, "effectiveTechniques"),
		KnownTriggers:          triggers,
		PreferredExerciseKinds: listAttrValue(item, "preferredExerciseKinds"),
		DislikedExercises:      listAttrValue(item, "dislikedExercises"),
		EmergencyContactID:     contact,
	}
}
