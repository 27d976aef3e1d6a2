package models

import "encoding/json"

// AnonymousSubject is the fallback owner key when neither a user ID nor a
// session ID is available.
const AnonymousSubject = "anonymous"

// Summary is the lightweight record kept in a subject's bounded history list.
// The full record lives in a separate detail key addressed by EntryID, so the
// ordered index stays small regardless of payload size.
type Summary struct {
	EntryID     string `json:"entry_id"`
	Text        string `json:"text,omitempty"`
	ProductID   string `json:"product_id,omitempty"`
	ProductName string `json:"product_name,omitempty"`
	Action      string `json:"action_type,omitempty"`
	ItemCount   int    `json:"item_count,omitempty"`
	Timestamp   int64  `json:"timestamp"`
	CreatedAt   string `json:"created_at"`
}

// SubjectStats aggregates activity counters for one subject. Counters track
// appends for the life of the TTL window and are never decremented when the
// bounded history list evicts old entries, so TotalBehaviors can exceed the
// list length.
type SubjectStats struct {
	TotalBehaviors int64            `json:"total_behaviors"`
	Actions        map[string]int64 `json:"actions"`
	LastActive     string           `json:"last_active,omitempty"`
}

// PopularEntry is one row of a popularity leaderboard.
type PopularEntry struct {
	Text  string `json:"text"`
	Count int64  `json:"count"`
}

// RecommendationDetail is the full record behind a recommendation history entry.
type RecommendationDetail struct {
	EntryID              string          `json:"entry_id"`
	Subject              string          `json:"subject"`
	Requirement          string          `json:"requirement"`
	RecommendationText   string          `json:"recommendation_text"`
	Products             json.RawMessage `json:"products,omitempty"`
	ProductCount         int             `json:"product_count"`
	RequirementLength    int             `json:"requirement_length"`
	RecommendationLength int             `json:"recommendation_length"`
	Timestamp            int64           `json:"timestamp"`
	CreatedAt            string          `json:"created_at"`
}

// ConversationDetail is the full record behind a Q&A history entry.
type ConversationDetail struct {
	EntryID        string   `json:"entry_id"`
	Subject        string   `json:"subject"`
	Question       string   `json:"question"`
	Answer         string   `json:"answer"`
	Sources        []Source `json:"sources,omitempty"`
	SourceCount    int      `json:"source_count"`
	QuestionLength int      `json:"question_length"`
	AnswerLength   int      `json:"answer_length"`
	Degraded       bool     `json:"degraded,omitempty"`
	Timestamp      int64    `json:"timestamp"`
	CreatedAt      string   `json:"created_at"`
}

// BehaviorDetail is the full record behind a raw behavior/view entry.
type BehaviorDetail struct {
	EntryID     string `json:"entry_id"`
	Subject     string `json:"subject"`
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	ActionType  string `json:"action_type"`
	Timestamp   int64  `json:"timestamp"`
	CreatedAt   string `json:"created_at"`
}
