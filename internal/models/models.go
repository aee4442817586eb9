// Package models holds the ledger schema as gorm structs.
//
// Records point forward at the entities they reference (a service record knows
// its customer); reverse collections are not modelled and are fetched on demand
// by the repositories.
package models

import "time"

// All returns every model in dependency order, for AutoMigrate.
func All() []any {
	return []any{
		&Staff{},
		&Customer{},
		&ServiceType{},
		&Product{},
		&ReferralChannel{},
		&RawMessage{},
		&Membership{},
		&ServiceRecord{},
		&ProductSale{},
		&InventoryLog{},
		&Correction{},
		&DailySummary{},
		&PluginData{},
	}
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
