package shield

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jimdaga/family-shield/internal/models"
	"github.com/kaptinlin/jsonschema"
	"gorm.io/gorm"
)

//go:embed settings_schema.json
var settingsSchemaJSON []byte

var (
	settingsSchemaOnce sync.Once
	settingsSchema     *jsonschema.Schema
	settingsSchemaErr  error
)

// ErrInvalidSettings wraps schema violations in a settings update.
var ErrInvalidSettings = errors.New("invalid shield settings")

// SettingsUpdate holds the owner-editable settings. Nil fields are left
// unchanged.
type SettingsUpdate struct {
	IsShieldEnabled                *bool `json:"is_shield_enabled"`
	InactivityPeriodMonths         *int  `json:"inactivity_period_months"`
	RequiredGuardiansForActivation *int  `json:"required_guardians_for_activation"`
}

// ValidateSettingsPayload checks a decoded JSON body against the settings
// schema.
func ValidateSettingsPayload(payload map[string]interface{}) error {
	settingsSchemaOnce.Do(func() {
		settingsSchema, settingsSchemaErr = jsonschema.NewCompiler().Compile(settingsSchemaJSON)
	})
	if settingsSchemaErr != nil {
		return fmt.Errorf("failed to compile settings schema: %w", settingsSchemaErr)
	}

	result := settingsSchema.Validate(payload)
	if result.IsValid() {
		return nil
	}

	var messages []string
	for field, evalErr := range result.Errors {
		messages = append(messages, fmt.Sprintf("%s: %s", field, evalErr.Error()))
	}
	sort.Strings(messages)
	return fmt.Errorf("%w: %s", ErrInvalidSettings, strings.Join(messages, "; "))
}

// UpdateSettings applies update to userID's settings, creating the row on
// first use. Status is never changed here.
func (l *Lifecycle) UpdateSettings(ctx context.Context, userID string, update SettingsUpdate) (*models.ShieldSettings, error) {
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var settings models.ShieldSettings
		err := tx.Where("user_id = ?", userID).First(&settings).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			settings = models.ShieldSettings{
				UserID:                         userID,
				InactivityPeriodMonths:         6,
				RequiredGuardiansForActivation: 1,
				ShieldStatus:                   models.ShieldStatusInactive,
			}
			applyUpdate(&settings, update)
			return tx.Create(&settings).Error
		}
		if err != nil {
			return err
		}

		changes := map[string]interface{}{}
		if update.IsShieldEnabled != nil {
			changes["is_shield_enabled"] = *update.IsShieldEnabled
		}
		if update.InactivityPeriodMonths != nil {
			changes["inactivity_period_months"] = *update.InactivityPeriodMonths
		}
		if update.RequiredGuardiansForActivation != nil {
			changes["required_guardians_for_activation"] = *update.RequiredGuardiansForActivation
		}
		if len(changes) == 0 {
			return nil
		}
		return tx.Model(&models.ShieldSettings{}).Where("id = ?", settings.ID).Updates(changes).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save shield settings: %w", err)
	}
	return l.Settings(ctx, userID)
}

func applyUpdate(s *models.ShieldSettings, u SettingsUpdate) {
	if u.IsShieldEnabled != nil {
		s.IsShieldEnabled = *u.IsShieldEnabled
	}
	if u.InactivityPeriodMonths != nil {
		s.InactivityPeriodMonths = *u.InactivityPeriodMonths
	}
	if u.RequiredGuardiansForActivation != nil {
		s.RequiredGuardiansForActivation = *u.RequiredGuardiansForActivation
	}
}
