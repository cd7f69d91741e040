package domain

import "time"

// InteractionRecord is one past query of a user, as kept by the history store.
type InteractionRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	Query     string    `json:"query"`
	QueryType QueryType `json:"query_type"`
	Domains   []string  `json:"domains"`
	CreatedAt time.Time `json:"created_at"`
}

// UserContext is the per-request view of a requester: recent history and the
// domain preferences derived from it. It is built fresh for every request and
// never mutated afterwards.
type UserContext struct {
	UserID            string              `json:"user_id"`
	SessionID         string              `json:"session_id"`
	History           []InteractionRecord `json:"history"`
	DomainPreferences []string            `json:"domain_preferences"`
	Metadata          map[string]string   `json:"metadata"`
	Personalized      bool                `json:"personalized"`
}
