package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"shopsense/internal/logging"
	"shopsense/internal/models"
)

// DegradedAnswer is returned whenever no retrieval backend produced results.
const DegradedAnswer = "Sorry, I could not find relevant information to answer your question right now. Please try again later."

const answerPromptTemplate = `You are a product knowledge assistant. Answer the user's question using only the retrieved knowledge below.

Retrieved knowledge:
%s

Question: %s

Answer accurately and concretely. If the knowledge is insufficient, say so.`

// SearchBackend is the hybrid search engine boundary the orchestrator talks
// to. *SearchService implements it; tests substitute fakes.
type SearchBackend interface {
	IsAvailable(ctx context.Context) bool
	SemanticSearch(ctx context.Context, index string, vector []float32, field string, size int) ([]models.SearchHit, error)
	MultiMatchSearch(ctx context.Context, index, query string, fields []string, size int) ([]models.SearchHit, error)
	IndexDocument(ctx context.Context, index, docID string, doc map[string]any) error
}

// Embedder turns text into a dense vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Completer generates an answer from a prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// OrchestratorConfig carries the retrieval tunables.
type OrchestratorConfig struct {
	KnowledgeIndex     string
	ConversationsIndex string
	SemanticBoost      float64
	TopK               int
	ContextCharsPerHit int
	MaxSources         int
	QuestionTrim       int
}

// RetrievalOrchestrator runs one Q&A query end to end: embed, query both
// backends, fuse, build a bounded context, call the LLM, record the exchange.
// A failed backend call is logged and treated as an empty hit list; nothing
// here propagates an exception to the caller.
type RetrievalOrchestrator struct {
	search        SearchBackend
	embedder      Embedder
	llm           Completer
	conversations *HistoryStore
	cfg           OrchestratorConfig
}

// AskResult is the structured outcome of one query.
type AskResult struct {
	Answer         string          `json:"answer"`
	Sources        []models.Source `json:"sources"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Degraded       bool            `json:"degraded"`
}

// NewRetrievalOrchestrator wires the retrieval pipeline.
func NewRetrievalOrchestrator(search SearchBackend, embedder Embedder, llm Completer, conversations *HistoryStore, cfg OrchestratorConfig) *RetrievalOrchestrator {
	return &RetrievalOrchestrator{
		search:        search,
		embedder:      embedder,
		llm:           llm,
		conversations: conversations,
		cfg:           cfg,
	}
}

// Ask answers one question for one subject. Both backends are always
// attempted; either failing degrades to an empty list for that side. Both
// failing yields the fixed degraded answer with no sources, still recorded
// in history so the failure is observable.
func (o *RetrievalOrchestrator) Ask(ctx context.Context, subject, question string) AskResult {
	var vector []float32
	semantic := o.semanticHits(ctx, question, &vector)
	lexical := o.lexicalHits(ctx, question)

	fused := MergeHits(semantic, lexical, o.cfg.SemanticBoost, o.cfg.TopK)
	logging.WithQuery(logging.WithSubject(subject), question, o.cfg.TopK).Debug("fused retrieval results",
		"semantic", len(semantic), "lexical", len(lexical), "fused", len(fused))

	result := AskResult{}
	if len(fused) == 0 {
		result.Answer = DegradedAnswer
		result.Degraded = true
		result.Sources = []models.Source{}
	} else {
		contextBlock := BuildContext(fused, o.cfg.TopK, o.cfg.ContextCharsPerHit)
		answer, err := o.llm.Complete(ctx, fmt.Sprintf(answerPromptTemplate, contextBlock, question))
		if err != nil {
			log.Printf("⚠️ [RAG] LLM call failed: %v", err)
			result.Answer = DegradedAnswer
			result.Degraded = true
			result.Sources = []models.Source{}
		} else {
			result.Answer = answer
			result.Sources = buildSources(fused, o.cfg.MaxSources)
		}
	}

	result.ConversationID = o.recordConversation(ctx, subject, question, result, vector)
	return result
}

func (o *RetrievalOrchestrator) semanticHits(ctx context.Context, question string, vector *[]float32) []models.SearchHit {
	if o.embedder == nil {
		return nil
	}
	vec, err := o.embedder.Embed(ctx, question)
	if err != nil {
		log.Printf("⚠️ [RAG] Embedding failed, semantic search skipped: %v", err)
		return nil
	}
	*vector = vec

	hits, err := o.search.SemanticSearch(ctx, o.cfg.KnowledgeIndex, vec, "content_vector", o.cfg.TopK)
	if err != nil {
		log.Printf("⚠️ [RAG] Semantic search degraded to empty results: %v", err)
		return nil
	}
	return hits
}

func (o *RetrievalOrchestrator) lexicalHits(ctx context.Context, question string) []models.SearchHit {
	hits, err := o.search.MultiMatchSearch(ctx, o.cfg.KnowledgeIndex, question,
		[]string{"value^2", "source_text", "product_name"}, o.cfg.TopK)
	if err != nil {
		log.Printf("⚠️ [RAG] Lexical search degraded to empty results: %v", err)
		return nil
	}
	return hits
}

// recordConversation appends the exchange to the conversation history and
// indexes it for similar-question lookup, both best-effort.
func (o *RetrievalOrchestrator) recordConversation(ctx context.Context, subject, question string, result AskResult, vector []float32) string {
	if o.conversations == nil {
		return ""
	}

	detail := models.ConversationDetail{
		Question:       question,
		Answer:         result.Answer,
		Sources:        result.Sources,
		SourceCount:    len(result.Sources),
		QuestionLength: len([]rune(question)),
		AnswerLength:   len([]rune(result.Answer)),
		Degraded:       result.Degraded,
	}
	summary := models.Summary{Text: truncateRunes(question, o.cfg.QuestionTrim)}

	entryID, err := o.conversations.Append(ctx, subject, summary, detail, question)
	if err != nil {
		log.Printf("⚠️ [RAG] Failed to record conversation for %s: %v", subject, err)
		return ""
	}

	if len(vector) > 0 && !result.Degraded {
		doc := map[string]any{
			"conversation_id": entryID,
			"subject":         subject,
			"question":        question,
			"answer":          result.Answer,
			"question_vector": vector,
		}
		if err := o.search.IndexDocument(ctx, o.cfg.ConversationsIndex, entryID, doc); err != nil {
			log.Printf("⚠️ [RAG] Failed to index conversation %s: %v", entryID, err)
		}
	}
	return entryID
}

// SimilarQuestions returns up to limit previously asked questions close to
// the given one, deduplicated and excluding the question itself.
func (o *RetrievalOrchestrator) SimilarQuestions(ctx context.Context, question string, limit int) []string {
	if o.embedder == nil {
		return nil
	}
	vec, err := o.embedder.Embed(ctx, question)
	if err != nil {
		log.Printf("⚠️ [RAG] Embedding failed, similar questions skipped: %v", err)
		return nil
	}

	// Over-fetch: duplicates collapse below.
	hits, err := o.search.SemanticSearch(ctx, o.cfg.ConversationsIndex, vec, "question_vector", limit*2)
	if err != nil {
		log.Printf("⚠️ [RAG] Similar-question search failed: %v", err)
		return nil
	}

	seen := map[string]bool{}
	out := make([]string, 0, limit)
	for _, hit := range hits {
		if len(out) >= limit {
			break
		}
		var doc struct {
			Question string `json:"question"`
		}
		if err := json.Unmarshal(hit.Source, &doc); err != nil {
			continue
		}
		text := strings.TrimSpace(doc.Question)
		if text == "" || text == question || seen[text] {
			continue
		}
		seen[text] = true
		out = append(out, text)
	}
	return out
}

// BuildContext formats fused hits into the bounded text block handed to the
// LLM. Each hit contributes at most charsPerHit runes, so the block size is
// capped regardless of document size.
func BuildContext(hits []models.SearchHit, maxHits, charsPerHit int) string {
	if maxHits > 0 && len(hits) > maxHits {
		hits = hits[:maxHits]
	}

	lines := make([]string, 0, len(hits))
	for i, hit := range hits {
		var doc models.KnowledgeDoc
		if err := json.Unmarshal(hit.Source, &doc); err != nil {
			continue
		}
		line := fmt.Sprintf("Knowledge %d: product: %s | attribute: %s | content: %s",
			i+1, orNA(doc.ProductName), orNA(doc.Attribute), orNA(doc.Value))
		lines = append(lines, truncateRunes(line, charsPerHit))
	}

	if len(lines) == 0 {
		return "No relevant information found."
	}
	return strings.Join(lines, "\n")
}

func buildSources(hits []models.SearchHit, max int) []models.Source {
	if max > 0 && len(hits) > max {
		hits = hits[:max]
	}
	sources := make([]models.Source, 0, len(hits))
	for _, hit := range hits {
		var doc models.KnowledgeDoc
		if err := json.Unmarshal(hit.Source, &doc); err != nil {
			continue
		}
		sources = append(sources, models.Source{
			Title:   fmt.Sprintf("%s - %s", orNA(doc.ProductName), orNA(doc.Attribute)),
			Content: orNA(doc.Value),
			Score:   hit.Score,
			Origin:  hit.Origin,
		})
	}
	return sources
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

// IndexKnowledge writes one knowledge document, embedding its content text
// when an embedder is configured.
func (o *RetrievalOrchestrator) IndexKnowledge(ctx context.Context, docID string, doc models.KnowledgeDoc) error {
	fields := map[string]any{
		"product_id":   doc.ProductID,
		"product_name": doc.ProductName,
		"brand":        doc.Brand,
		"category":     doc.Category,
		"attribute":    doc.Attribute,
		"value":        doc.Value,
		"source_text":  doc.SourceText,
	}
	if o.embedder != nil {
		content := strings.TrimSpace(doc.Attribute + " " + doc.Value + " " + doc.SourceText)
		vec, err := o.embedder.Embed(ctx, content)
		if err != nil {
			return fmt.Errorf("failed to embed knowledge content: %w", err)
		}
		fields["content_vector"] = vec
	}
	if err := o.search.IndexDocument(ctx, o.cfg.KnowledgeIndex, docID, fields); err != nil {
		return fmt.Errorf("failed to index knowledge document: %w", err)
	}
	return nil
}
