package emergency

import (
	"sort"

	"github.com/jimdaga/family-shield/internal/models"
)

// Disclosure categories
const (
	CategoryHealth     = "health"
	CategoryMedical    = "medical"
	CategoryInsurance  = "insurance"
	CategoryFinancial  = "financial"
	CategoryBank       = "bank"
	CategoryInvestment = "investment"
	CategoryTax        = "tax"
	CategoryLegal      = "legal"
	CategoryWill       = "will"
	CategoryEstate     = "estate"
	CategoryProperty   = "property"
	CategoryFamily     = "family"
	CategoryChildren   = "children"
	CategoryEducation  = "education"
)

// permissionGrant ties one permission flag to the categories it unlocks.
type permissionGrant struct {
	flag       string
	enabled    func(models.GuardianPermissions) bool
	categories []string
}

var categoryTable = []permissionGrant{
	{
		flag:       "can_access_health_docs",
		enabled:    func(p models.GuardianPermissions) bool { return p.CanAccessHealthDocs },
		categories: []string{CategoryHealth, CategoryMedical, CategoryInsurance},
	},
	{
		flag:       "can_access_financial_docs",
		enabled:    func(p models.GuardianPermissions) bool { return p.CanAccessFinancialDocs },
		categories: []string{CategoryFinancial, CategoryBank, CategoryInvestment, CategoryTax},
	},
	{
		flag:       "is_will_executor",
		enabled:    func(p models.GuardianPermissions) bool { return p.IsWillExecutor },
		categories: []string{CategoryLegal, CategoryWill, CategoryEstate, CategoryProperty},
	},
	{
		flag:       "is_child_guardian",
		enabled:    func(p models.GuardianPermissions) bool { return p.IsChildGuardian },
		categories: []string{CategoryFamily, CategoryChildren, CategoryEducation},
	},
}

// CategoriesForFlag returns the categories a single permission flag unlocks.
func CategoriesForFlag(flag string) []string {
	for _, g := range categoryTable {
		if g.flag == flag {
			return append([]string(nil), g.categories...)
		}
	}
	return nil
}

// AllowedCategories returns the sorted union of categories unlocked by
// perms. No flags set yields an empty, non-nil slice.
func AllowedCategories(perms models.GuardianPermissions) []string {
	allowed := []string{}
	for _, g := range categoryTable {
		if g.enabled(perms) {
			allowed = append(allowed, g.categories...)
		}
	}
	sort.Strings(allowed)
	return allowed
}

// CategoryAllowed reports whether category is disclosable under perms.
func CategoryAllowed(perms models.GuardianPermissions, category string) bool {
	for _, g := range categoryTable {
		if !g.enabled(perms) {
			continue
		}
		for _, c := range g.categories {
			if c == category {
				return true
			}
		}
	}
	return false
}
