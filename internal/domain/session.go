package domain

// Durable storage keys shared by every process of the same user.
const (
	KeyAuthToken        = "authToken"
	KeyRefreshToken     = "refreshToken"
	KeyActiveTab        = "activeTab"
	KeyHasSetDefaultTab = "hasSetDefaultTab"
	KeyDarkMode         = "darkMode"
)

// SessionStatus is the single state of the session machine.
type SessionStatus string

const (
	SessionCheckingAuth    SessionStatus = "checking_auth"
	SessionUnauthenticated SessionStatus = "unauthenticated"
	SessionAuthenticating  SessionStatus = "authenticating"
	SessionAuthenticated   SessionStatus = "authenticated"
	SessionError           SessionStatus = "error"
)

// SessionState is a snapshot of the session store.
type SessionState struct {
	Status          SessionStatus `json:"status"`
	User            *User         `json:"user"`
	Error           string        `json:"error,omitempty"`
	IsAuthenticated bool          `json:"isAuthenticated"`
	IsLoading       bool          `json:"isLoading"`
}

// StorageChange announces that a durable key was written (Value set) or removed (Value nil).
// Origin identifies the process that made the change.
type StorageChange struct {
	Key    string  `json:"key"`
	Value  *string `json:"value"`
	Origin string  `json:"origin"`
}

// Removed reports whether the change deleted the key.
func (c StorageChange) Removed() bool {
	return c.Value == nil
}

// Preferences are the UI settings persisted next to the session.
type Preferences struct {
	ActiveTab        string `json:"activeTab"`
	HasSetDefaultTab bool   `json:"hasSetDefaultTab"`
	DarkMode         bool   `json:"darkMode"`
}

// FinanceState is a snapshot of the finance aggregator.
type FinanceState struct {
	Transactions   []Transaction           `json:"transactions"`
	MonthlyData    []MonthlyFinanceSummary `json:"monthlyData"`
	Categories     []Category              `json:"categories"`
	Goals          []FinancialGoal         `json:"goals"`
	PaymentMethods []PaymentMethod         `json:"paymentMethods"`
	CurrentMonth   MonthKey                `json:"currentMonth"`
	Active         bool                    `json:"active"`
	IsLoading      bool                    `json:"isLoading"`
	Error          string                  `json:"error,omitempty"`
}

// DebtState is a snapshot of the debt aggregator.
// PaymentMethods are borrowed from the finance aggregator.
type DebtState struct {
	People         []Person             `json:"people"`
	Debts          []Debt               `json:"debts"`
	MonthlyData    []MonthlyDebtSummary `json:"monthlyData"`
	Summary        *DebtSummaryResponse `json:"summary,omitempty"`
	PaymentMethods []PaymentMethod      `json:"paymentMethods"`
	CurrentMonth   MonthKey             `json:"currentMonth"`
	Active         bool                 `json:"active"`
	IsLoading      bool                 `json:"isLoading"`
	Error          string               `json:"error,omitempty"`
}
