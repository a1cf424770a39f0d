package models

// All lists every persisted model, in dependency order. Tests use it to
// AutoMigrate throwaway SQLite schemas; production schema lives in goose migrations.
func All() []any {
	return []any{
		&Item{},
		&CheckoutSession{},
		&Order{},
		&OrderLineItem{},
		&OrderAddress{},
		&ProviderPrice{},
		&ProviderShippingRate{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
