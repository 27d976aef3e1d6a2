package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Port           string
	RedisURL       string
	AllowedOrigins string

	// Elasticsearch configuration
	ESAddresses        []string
	ESUsername         string
	ESPassword         string
	ESInsecureSkipTLS  bool
	ESEnabled          bool
	KnowledgeIndex     string
	ConversationsIndex string
	ProductsIndex      string
	VectorDims         int
	SearchTimeout      time.Duration

	// LLM (OpenAI-compatible chat completions)
	LLMAPIKey  string
	LLMBaseURL string
	LLMModel   string
	LLMTimeout time.Duration

	// Embedding model (OpenAI-compatible embeddings endpoint)
	EmbeddingAPIKey  string
	EmbeddingBaseURL string
	EmbeddingModel   string

	// History retention
	MaxRecommendations int
	MaxConversations   int
	MaxRecentViews     int
	HistoryTTL         time.Duration
	StatsTTL           time.Duration

	// Popularity leaderboards
	PopularRequirementsCap int
	PopularQuestionsCap    int
	PopularPrefixLen       int
	PopularityTTL          time.Duration

	// Retrieval fusion and context building
	SemanticBoost      float64
	FusionTopK         int
	ContextCharsPerHit int
	MaxSources         int
	RequirementTrim    int
	QuestionTrim       int

	// Hot product cache
	HotProductsTTL     time.Duration
	ProductDetailTTL   time.Duration
	HotProductsRefresh time.Duration
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8000"),
		RedisURL:       getEnv("REDIS_URL", "redis://localhost:6379/0"),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000"),

		ESAddresses:        splitCSV(getEnv("ELASTICSEARCH_ADDRESSES", "https://localhost:9200")),
		ESUsername:         getEnv("ELASTICSEARCH_USERNAME", ""),
		ESPassword:         getEnv("ELASTICSEARCH_PASSWORD", ""),
		ESInsecureSkipTLS:  getBoolEnv("ELASTICSEARCH_INSECURE_SKIP_TLS", true),
		ESEnabled:          getBoolEnv("ELASTICSEARCH_ENABLED", true),
		KnowledgeIndex:     getEnv("ELASTICSEARCH_KNOWLEDGE_INDEX", "rag_knowledge_index"),
		ConversationsIndex: getEnv("ELASTICSEARCH_CONVERSATIONS_INDEX", "rag_conversations_index"),
		ProductsIndex:      getEnv("ELASTICSEARCH_PRODUCTS_INDEX", "rag_products_index"),
		VectorDims:         getIntEnv("EMBEDDING_VECTOR_DIMS", 1024),
		SearchTimeout:      getDurationEnv("SEARCH_TIMEOUT_SECONDS", 30),

		LLMAPIKey:  getEnv("LLM_API_KEY", ""),
		LLMBaseURL: getEnv("LLM_BASE_URL", "https://dashscope.aliyuncs.com/compatible-mode/v1"),
		LLMModel:   getEnv("LLM_MODEL", "qwen-max"),
		LLMTimeout: getDurationEnv("LLM_TIMEOUT_SECONDS", 60),

		EmbeddingAPIKey:  getEnv("EMBEDDING_API_KEY", ""),
		EmbeddingBaseURL: getEnv("EMBEDDING_BASE_URL", "https://dashscope.aliyuncs.com/compatible-mode/v1"),
		EmbeddingModel:   getEnv("EMBEDDING_MODEL", "text-embedding-v3"),

		MaxRecommendations: getIntEnv("MAX_RECOMMENDATIONS", 20),
		MaxConversations:   getIntEnv("MAX_CONVERSATIONS", 50),
		MaxRecentViews:     getIntEnv("MAX_RECENT_VIEWS", 10),
		HistoryTTL:         getDurationEnv("HISTORY_TTL_SECONDS", 7*24*3600),
		StatsTTL:           getDurationEnv("STATS_TTL_SECONDS", 30*24*3600),

		PopularRequirementsCap: getIntEnv("POPULAR_REQUIREMENTS_CAP", 50),
		PopularQuestionsCap:    getIntEnv("POPULAR_QUESTIONS_CAP", 100),
		PopularPrefixLen:       getIntEnv("POPULAR_PREFIX_LEN", 50),
		PopularityTTL:          getDurationEnv("POPULARITY_TTL_SECONDS", 30*24*3600),

		SemanticBoost:      getFloatEnv("SEMANTIC_BOOST", 1.2),
		FusionTopK:         getIntEnv("FUSION_TOP_K", 5),
		ContextCharsPerHit: getIntEnv("CONTEXT_CHARS_PER_HIT", 200),
		MaxSources:         getIntEnv("MAX_SOURCES", 3),
		RequirementTrim:    getIntEnv("REQUIREMENT_TRIM", 50),
		QuestionTrim:       getIntEnv("QUESTION_TRIM", 100),

		HotProductsTTL:     getDurationEnv("HOT_PRODUCTS_TTL_SECONDS", 1800),
		ProductDetailTTL:   getDurationEnv("PRODUCT_DETAIL_TTL_SECONDS", 3600),
		HotProductsRefresh: getDurationEnv("HOT_PRODUCTS_REFRESH_SECONDS", 1800),
	}
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, strings.TrimSuffix(trimmed, "/"))
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultSeconds int) time.Duration {
	return time.Duration(getIntEnv(key, defaultSeconds)) * time.Second
}
