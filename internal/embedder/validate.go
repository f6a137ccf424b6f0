package embedder

import (
	"log/slog"
	"os"
	"strings"
)

// knownChatModelFragments identify chat/completion models that are not
// suitable for embedding.
var knownChatModelFragments = []string{
	"gpt-4",
	"gpt-3.5",
	"o1",
	"o3",
	"llama3",
	"llama-3",
	"mistral",
	"gemma",
	"claude",
	"deepseek-chat",
	"deepseek-v",
	"deepseek-r",
	"qwen2.5-",
	"qwen3-",
	"glm-4",
	"doubao",
}

// looksLikeChatModel reports whether model resembles a chat model rather
// than a dedicated embedding model.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	if strings.Contains(lower, "embed") || strings.Contains(lower, "bge") {
		return false
	}
	for _, frag := range knownChatModelFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

// WarnMisconfiguration logs a warning when the resolved embedding model looks
// like a chat model, which happens when SILICONFLOW_EMBEDDING_MODEL is unset
// and the embedder inherits SILICONFLOW_MODEL. It also warns when the
// backend's vector size differs from the recipe index size.
func WarnMisconfiguration(log *slog.Logger) {
	model := firstEnv("EMBEDDING_MODEL")
	if Backend() == "siliconflow" && model == "" {
		model = firstEnv("SILICONFLOW_EMBEDDING_MODEL", "SILICONFLOW_MODEL")
	}
	if model != "" && looksLikeChatModel(model) {
		log.Warn("embedder: embedding model looks like a chat model; vectors will likely be wrong",
			slog.String("model", model),
			slog.String("hint", "set SILICONFLOW_EMBEDDING_MODEL or EMBEDDING_MODEL to an embedding model"),
		)
	}
	if dims := DefaultDimensions(Backend()); dims != DefaultIndexDimensions && os.Getenv("QDRANT_COLLECTION") == "" {
		log.Warn("embedder: vector size differs from the default recipe collection; set QDRANT_COLLECTION to a separate collection",
			slog.Int("dimensions", dims),
			slog.Int("collection_dimensions", DefaultIndexDimensions),
		)
	}
}
