package models

// All lists every persisted model, in dependency order, for AutoMigrate.
func All() []any {
	return []any{
		&Tenant{},
		&Product{},
		&ProductVariant{},
		&Cart{},
		&CartItem{},
		&Order{},
		&OrderItem{},
		&OrderSettlement{},
		&OrderDelivery{},
		&Wallet{},
		&WalletTransaction{},
		&EmergencyInventoryEntry{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
