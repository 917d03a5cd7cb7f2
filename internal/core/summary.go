package core

// MonthlySummary aggregates one period of the ledger.
type MonthlySummary struct {
	Period              Period           `json:"yearMonth"`
	IncomeTotal         int64            `json:"totalIncome"`
	ExpenseTotal        int64            `json:"totalExpense"`
	Balance             int64            `json:"balance"`
	MajorCategoryTotals map[string]int64 `json:"majorCategoryTotals"`
}

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string `json:"name"`
	Amount int64  `json:"amount"`
}
