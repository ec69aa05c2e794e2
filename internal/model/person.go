package model

// PersonRecord は過去に入力された人物の記録。
// LastUsedはUnixエポックからのミリ秒。
type PersonRecord struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Account  string   `json:"account"`
	Role     string   `json:"role"`
	LastUsed int64    `json:"lastUsed"`
	UseCount int      `json:"useCount"`
	Events   []string `json:"events"`
}

// PersonInput は人物記録のアップサート入力。
type PersonInput struct {
	Name    string   `json:"name"`
	Account string   `json:"account"`
	Role    string   `json:"role,omitempty"`
	Events  []string `json:"events,omitempty"`
}
