package handlers

// Handlers groups every HTTP handler so route modules can pick theirs.
type Handlers struct {
	Auth         *AuthHandler
	Profile      *ProfileHandler
	Team         *TeamHandler
	Property     *PropertyHandler
	Admin        *AdminHandler
	Favorite     *FavoriteHandler
	Lease        *LeaseHandler
	Rental       *RentalHandler
	Message      *MessageHandler
	Tenant       *TenantHandler
	Notification *NotificationHandler
	Expense      *ExpenseHandler
	Import       *ImportHandler
	Cron         *CronHandler
	Health       *HealthHandler
	WebSocket    *WebSocketHandler
}
