package emergency

import (
	"testing"

	"github.com/jimdaga/family-shield/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestCategoriesForFlag(t *testing.T) {
	tests := []struct {
		flag  string
		perms models.GuardianPermissions
		want  []string
	}{
		{
			flag:  "can_access_health_docs",
			perms: models.GuardianPermissions{CanAccessHealthDocs: true},
			want:  []string{"health", "medical", "insurance"},
		},
		{
			flag:  "can_access_financial_docs",
			perms: models.GuardianPermissions{CanAccessFinancialDocs: true},
			want:  []string{"financial", "bank", "investment", "tax"},
		},
		{
			flag:  "is_will_executor",
			perms: models.GuardianPermissions{IsWillExecutor: true},
			want:  []string{"legal", "will", "estate", "property"},
		},
		{
			flag:  "is_child_guardian",
			perms: models.GuardianPermissions{IsChildGuardian: true},
			want:  []string{"family", "children", "education"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.flag, func(t *testing.T) {
			assert.ElementsMatch(t, tt.want, CategoriesForFlag(tt.flag))
			assert.ElementsMatch(t, tt.want, AllowedCategories(tt.perms))
			for _, c := range tt.want {
				assert.True(t, CategoryAllowed(tt.perms, c), c)
			}
		})
	}

	assert.Nil(t, CategoriesForFlag("can_fly"))
}

func TestAllowedCategoriesEmpty(t *testing.T) {
	got := AllowedCategories(models.GuardianPermissions{})
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.False(t, CategoryAllowed(models.GuardianPermissions{}, CategoryHealth))
}

func TestAllowedCategoriesUnionIsSorted(t *testing.T) {
	got := AllowedCategories(models.GuardianPermissions{CanAccessHealthDocs: true, IsWillExecutor: true})
	assert.Equal(t, []string{"estate", "health", "insurance", "legal", "medical", "property", "will"}, got)
}

func TestChildGuardianCannotSeeFinancial(t *testing.T) {
	perms := models.GuardianPermissions{IsChildGuardian: true}
	assert.False(t, CategoryAllowed(perms, CategoryFinancial))
	assert.False(t, CategoryAllowed(perms, "unknown"))
}

func TestCategoriesForFlagReturnsCopy(t *testing.T) {
	got := CategoriesForFlag("is_child_guardian")
	got[0] = "tampered"
	assert.Equal(t, "family", CategoriesForFlag("is_child_guardian")[0])
}
