package httpapi

type transaction struct {
	ID          int    `json:"id"`
	Type        string `json:"type"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	Date        string `json:"date"`
}

type activity struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Reward      int64  `json:"reward"`
	Description string `json:"description"`
}

type item struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Category string `json:"category"`
}

type dashboardData struct {
	RecentTransactions  []transaction `json:"recent_transactions"`
	AvailableActivities []activity    `json:"available_activities"`
	FeaturedItems       []item        `json:"featured_items"`
}

// sampleDashboard is placeholder content until activities and the
// marketplace are backed by storage.
var sampleDashboard = dashboardData{
	RecentTransactions: []transaction{
		{ID: 1, Type: "credit", Amount: 100, Description: "Daily Check-in Reward", Date: "2025-01-15"},
		{ID: 2, Type: "debit", Amount: 50, Description: "Premium Badge Purchase", Date: "2025-01-14"},
		{ID: 3, Type: "credit", Amount: 200, Description: "Referral Bonus", Date: "2025-01-13"},
	},
	AvailableActivities: []activity{
		{ID: 1, Name: "Daily Check-in", Reward: 10, Description: "Check in daily to earn rewards"},
		{ID: 2, Name: "Weekly Survey", Reward: 50, Description: "Complete weekly community survey"},
		{ID: 3, Name: "Content Creation", Reward: 100, Description: "Create and share content"},
	},
	FeaturedItems: []item{
		{ID: 1, Name: "Premium Badge", Price: 100, Category: "badges"},
		{ID: 2, Name: "Custom Avatar Frame", Price: 50, Category: "cosmetics"},
		{ID: 3, Name: "Extra Storage", Price: 200, Category: "utilities"},
	},
}
