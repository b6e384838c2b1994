package models

// GuardianPermissions are the capability flags a guardian holds. They are
// copied onto every issued token; later edits to a Guardian do not change
// tokens already issued.
type GuardianPermissions struct {
	CanAccessHealthDocs    bool `json:"can_access_health_docs" gorm:"not null;default:false"`
	CanAccessFinancialDocs bool `json:"can_access_financial_docs" gorm:"not null;default:false"`
	IsChildGuardian        bool `json:"is_child_guardian" gorm:"not null;default:false"`
	IsWillExecutor         bool `json:"is_will_executor" gorm:"not null;default:false"`
}

// Guardian is a trusted person a user has designated for emergency access.
type Guardian struct {
	Base
	UserID      string              `gorm:"type:uuid;not null;index"`
	Name        string              `gorm:"not null"`
	Email       string              `gorm:"not null"`
	Permissions GuardianPermissions `gorm:"embedded"`
}
