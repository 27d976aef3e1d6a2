package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"shopsense/internal/models"
)

type fakeSearch struct {
	semanticHits []models.SearchHit
	semanticErr  error
	lexicalHits  []models.SearchHit
	lexicalErr   error
	indexed      map[string]map[string]any
}

func (f *fakeSearch) IsAvailable(ctx context.Context) bool { return true }

func (f *fakeSearch) SemanticSearch(ctx context.Context, index string, vector []float32, field string, size int) ([]models.SearchHit, error) {
	return f.semanticHits, f.semanticErr
}

func (f *fakeSearch) MultiMatchSearch(ctx context.Context, index, query string, fields []string, size int) ([]models.SearchHit, error) {
	return f.lexicalHits, f.lexicalErr
}

func (f *fakeSearch) IndexDocument(ctx context.Context, index, docID string, doc map[string]any) error {
	if f.indexed == nil {
		f.indexed = map[string]map[string]any{}
	}
	f.indexed[index+"/"+docID] = doc
	return nil
}

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vector, f.err
}

type fakeLLM struct {
	answer     string
	err        error
	lastPrompt string
}

func (f *fakeLLM) Complete(ctx context.Context, prompt string) (string, error) {
	f.lastPrompt = prompt
	return f.answer, f.err
}

func knowledgeHit(id string, score float64, productName, attribute, value string) models.SearchHit {
	doc := map[string]string{"product_name": productName, "attribute": attribute, "value": value}
	raw, _ := json.Marshal(doc)
	return models.SearchHit{DocID: id, Score: score, Source: raw}
}

func testOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		KnowledgeIndex:     "rag_knowledge_index",
		ConversationsIndex: "rag_conversations_index",
		SemanticBoost:      1.2,
		TopK:               5,
		ContextCharsPerHit: 200,
		MaxSources:         3,
		QuestionTrim:       100,
	}
}

func newTestConversationStore(t *testing.T) *HistoryStore {
	t.Helper()
	rdb := newTestRedis(t)
	return NewConversationStore(rdb, 50, time.Hour, NewStatsService(rdb, time.Hour), nil)
}

func TestAskDegradesWhenNoBackendReturnsResults(t *testing.T) {
	ctx := context.Background()
	store := newTestConversationStore(t)
	orch := NewRetrievalOrchestrator(
		&fakeSearch{},
		&fakeEmbedder{err: errors.New("embedding service down")},
		&fakeLLM{answer: "should not be called"},
		store,
		testOrchestratorConfig(),
	)

	result := orch.Ask(ctx, "user-1", "What is the battery life?")

	if !result.Degraded {
		t.Error("expected degraded result")
	}
	if result.Answer != DegradedAnswer {
		t.Errorf("expected the fixed degraded answer, got %q", result.Answer)
	}
	if len(result.Sources) != 0 {
		t.Errorf("expected no sources, got %d", len(result.Sources))
	}
	if result.ConversationID == "" {
		t.Fatal("expected the degraded exchange recorded in history")
	}

	raw, err := store.GetDetail(ctx, result.ConversationID)
	if err != nil || raw == nil {
		t.Fatalf("expected conversation detail, got raw=%v err=%v", raw, err)
	}
	var detail models.ConversationDetail
	if err := json.Unmarshal(raw, &detail); err != nil {
		t.Fatalf("detail is not valid JSON: %v", err)
	}
	if !detail.Degraded {
		t.Error("expected recorded detail to be marked degraded")
	}
	if detail.Question != "What is the battery life?" {
		t.Errorf("expected question preserved, got %q", detail.Question)
	}
}

func TestAskAnswersWithOneBackendDown(t *testing.T) {
	ctx := context.Background()
	llm := &fakeLLM{answer: "About 20 hours on a full charge."}
	orch := NewRetrievalOrchestrator(
		&fakeSearch{
			semanticErr: errors.New("search engine unreachable"),
			lexicalHits: []models.SearchHit{knowledgeHit("k1", 0.7, "Phone X", "battery", "5000mAh battery, 20h playback")},
		},
		&fakeEmbedder{vector: []float32{0.1, 0.2}},
		llm,
		newTestConversationStore(t),
		testOrchestratorConfig(),
	)

	result := orch.Ask(ctx, "user-1", "How long does the battery last?")

	if result.Degraded {
		t.Fatal("expected a normal answer when one backend still returns hits")
	}
	if result.Answer != llm.answer {
		t.Errorf("expected LLM answer, got %q", result.Answer)
	}
	if len(result.Sources) != 1 {
		t.Fatalf("expected 1 source, got %d", len(result.Sources))
	}
	if result.Sources[0].Origin != models.OriginLexical {
		t.Errorf("expected lexical origin, got %s", result.Sources[0].Origin)
	}
	if !strings.Contains(llm.lastPrompt, "5000mAh") {
		t.Error("expected retrieved knowledge in the prompt")
	}
	if !strings.Contains(llm.lastPrompt, "How long does the battery last?") {
		t.Error("expected the question in the prompt")
	}
}

func TestAskDegradesWhenLLMFails(t *testing.T) {
	ctx := context.Background()
	orch := NewRetrievalOrchestrator(
		&fakeSearch{lexicalHits: []models.SearchHit{knowledgeHit("k1", 0.7, "Phone X", "battery", "5000mAh")}},
		&fakeEmbedder{vector: []float32{0.1}},
		&fakeLLM{err: errors.New("rate limited")},
		newTestConversationStore(t),
		testOrchestratorConfig(),
	)

	result := orch.Ask(ctx, "user-1", "Battery?")

	if !result.Degraded || result.Answer != DegradedAnswer {
		t.Errorf("expected degraded answer on LLM failure, got %+v", result)
	}
	if len(result.Sources) != 0 {
		t.Errorf("expected no sources on degraded answer, got %d", len(result.Sources))
	}
}

func TestAskMarksOverlapHybridAndIndexesConversation(t *testing.T) {
	ctx := context.Background()
	search := &fakeSearch{
		semanticHits: []models.SearchHit{knowledgeHit("k1", 0.9, "Phone X", "battery", "5000mAh")},
		lexicalHits:  []models.SearchHit{knowledgeHit("k1", 0.7, "Phone X", "battery", "5000mAh")},
	}
	orch := NewRetrievalOrchestrator(
		search,
		&fakeEmbedder{vector: []float32{0.1, 0.2}},
		&fakeLLM{answer: "5000mAh."},
		newTestConversationStore(t),
		testOrchestratorConfig(),
	)

	result := orch.Ask(ctx, "user-1", "Battery capacity?")

	if len(result.Sources) != 1 {
		t.Fatalf("expected 1 deduplicated source, got %d", len(result.Sources))
	}
	if result.Sources[0].Origin != models.OriginHybrid {
		t.Errorf("expected hybrid origin for overlapping hit, got %s", result.Sources[0].Origin)
	}

	doc, ok := search.indexed["rag_conversations_index/"+result.ConversationID]
	if !ok {
		t.Fatal("expected the exchange indexed for similar-question lookup")
	}
	if doc["question"] != "Battery capacity?" {
		t.Errorf("expected question in indexed doc, got %v", doc["question"])
	}
	if doc["question_vector"] == nil {
		t.Error("expected question vector in indexed doc")
	}
}

func TestSimilarQuestionsDeduplicatesAndExcludesSelf(t *testing.T) {
	ctx := context.Background()
	convHit := func(id, question string) models.SearchHit {
		raw, _ := json.Marshal(map[string]string{"question": question})
		return models.SearchHit{DocID: id, Score: 1, Source: raw}
	}
	orch := NewRetrievalOrchestrator(
		&fakeSearch{semanticHits: []models.SearchHit{
			convHit("c1", "Battery capacity?"),
			convHit("c2", "How big is the battery?"),
			convHit("c3", "How big is the battery?"),
			convHit("c4", "  "),
			convHit("c5", "Does it fast charge?"),
		}},
		&fakeEmbedder{vector: []float32{0.1}},
		&fakeLLM{},
		nil,
		testOrchestratorConfig(),
	)

	got := orch.SimilarQuestions(ctx, "Battery capacity?", 5)

	want := []string{"How big is the battery?", "Does it fast charge?"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("expected %q at position %d, got %q", want[i], i, got[i])
		}
	}
}

func TestBuildContextBoundsEachLine(t *testing.T) {
	long := strings.Repeat("very long spec sheet ", 50)
	hits := []models.SearchHit{knowledgeHit("k1", 1, "Phone X", "specs", long)}

	block := BuildContext(hits, 5, 80)

	for _, line := range strings.Split(block, "\n") {
		if n := len([]rune(line)); n > 83 { // 80 runes plus ellipsis
			t.Errorf("expected line bounded to 83 runes, got %d", n)
		}
	}
	if !strings.HasPrefix(block, "Knowledge 1: product: Phone X") {
		t.Errorf("unexpected context format: %q", block)
	}
}

func TestBuildContextCapsHitCountAndHandlesEmpty(t *testing.T) {
	hits := []models.SearchHit{
		knowledgeHit("k1", 3, "A", "a", "1"),
		knowledgeHit("k2", 2, "B", "b", "2"),
		knowledgeHit("k3", 1, "C", "c", "3"),
	}

	block := BuildContext(hits, 2, 200)
	if lines := strings.Split(block, "\n"); len(lines) != 2 {
		t.Errorf("expected 2 context lines, got %d", len(lines))
	}

	if got := BuildContext(nil, 5, 200); got != "No relevant information found." {
		t.Errorf("expected fallback message for empty hits, got %q", got)
	}

	// Missing fields render as N/A rather than blank.
	block = BuildContext([]models.SearchHit{knowledgeHit("k1", 1, "", "color", "red")}, 5, 200)
	if !strings.Contains(block, "product: N/A") {
		t.Errorf("expected N/A placeholder, got %q", block)
	}
}
