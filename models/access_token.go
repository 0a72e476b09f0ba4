package models

type AccessToken struct {
	// ? maybe change to uuid.UUID
	ID        string `json:"id"`
	Name      string `json:"name"`
	AccountID string `json:"account_id"`
	Token     string `json:"token"`
}
