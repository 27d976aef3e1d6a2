package models

import "encoding/json"

// Hit origins. A fused hit that matched on both backends is marked hybrid.
const (
	OriginSemantic = "semantic"
	OriginLexical  = "lexical"
	OriginHybrid   = "hybrid"
)

// SearchHit is one result row from a search backend. Source carries the raw
// document fields so callers can project whatever they need without the
// search layer knowing the schema.
type SearchHit struct {
	DocID  string          `json:"doc_id"`
	Score  float64         `json:"score"`
	Source json.RawMessage `json:"source"`
	Origin string          `json:"origin"`
}

// Source is a citation handed back to the caller alongside an answer.
type Source struct {
	Title   string  `json:"source"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
	Origin  string  `json:"origin,omitempty"`
}

// KnowledgeDoc mirrors the fields of a knowledge-index document that the
// context builder and citation formatting care about.
type KnowledgeDoc struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Brand       string `json:"brand"`
	Category    string `json:"category"`
	Attribute   string `json:"attribute"`
	Value       string `json:"value"`
	SourceText  string `json:"source_text"`
}
