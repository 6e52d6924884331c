package narrator

import (
	"context"
	"fmt"

	"signal-desk/internal/domain"

	"github.com/charmbracelet/log"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultInterval = "1h"

// LLMClient abstracts the OpenAI chat completions API for testability.
type LLMClient interface {
	CreateChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}

// AnalysisQuerier provides the technical data the narrator explains.
type AnalysisQuerier interface {
	Analyze(ctx context.Context, symbol, interval string) (*domain.SymbolAnalysis, error)
	Levels(ctx context.Context, symbol, interval string) ([]domain.KeyLevel, error)
}

// ConversationStore persists and retrieves conversation messages.
type ConversationStore interface {
	AppendMessage(ctx context.Context, chatID int64, role, content string) error
	RecentMessages(ctx context.Context, chatID int64, limit int) ([]domain.ConversationMessage, error)
}

// Narrator turns computed analyses into prose via an LLM.
type Narrator struct {
	tracer     trace.Tracer
	llm        LLMClient
	analyses   AnalysisQuerier
	convStore  ConversationStore
	model      string
	maxHistory int
}

// New builds a Narrator. convStore may be nil, in which case Ask keeps no
// history.
func New(
	tracer trace.Tracer,
	llm LLMClient,
	analyses AnalysisQuerier,
	convStore ConversationStore,
	model string,
	maxHistory int,
) *Narrator {
	if maxHistory <= 0 {
		maxHistory = 20
	}
	return &Narrator{
		tracer:     tracer,
		llm:        llm,
		analyses:   analyses,
		convStore:  convStore,
		model:      model,
		maxHistory: maxHistory,
	}
}

// Commentary asks the LLM for a short read of one symbol's analysis.
func (n *Narrator) Commentary(ctx context.Context, symbol, interval string) (string, error) {
	ctx, span := n.tracer.Start(ctx, "narrator.commentary")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", symbol), attribute.String("interval", interval))

	a, err := n.analyses.Analyze(ctx, symbol, interval)
	if err != nil {
		return "", err
	}
	levels := map[string][]domain.KeyLevel{}
	if lv, err := n.analyses.Levels(ctx, a.Symbol, a.Interval); err == nil {
		levels[a.Symbol] = lv
	} else {
		log.Warn("levels unavailable for commentary", "symbol", a.Symbol, "err", err)
	}

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(BuildSystemPrompt(FormatAnalysisContext([]*domain.SymbolAnalysis{a}, levels))),
		openai.UserMessage(fmt.Sprintf("Give a short commentary on %s (%s): trend, momentum, key levels and the setup.", a.Symbol, a.Interval)),
	}

	reply, err := n.callLLM(ctx, messages)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("narrator unavailable: %w", err)
	}
	return reply, nil
}

// Ask answers a free-form question, grounding it on the analyses of every
// symbol the question mentions.
func (n *Narrator) Ask(ctx context.Context, chatID int64, userMessage string) (string, error) {
	ctx, span := n.tracer.Start(ctx, "narrator.ask")
	defer span.End()
	span.SetAttributes(attribute.Int64("chat_id", chatID))

	if n.convStore != nil {
		if err := n.convStore.AppendMessage(ctx, chatID, "user", userMessage); err != nil {
			log.Warnf("failed to store user message: %v", err)
		}
	}

	marketContext := n.gatherContext(ctx, ExtractSymbols(userMessage))
	systemPrompt := BuildSystemPrompt(marketContext)

	var history []domain.ConversationMessage
	if n.convStore != nil {
		var err error
		history, err = n.convStore.RecentMessages(ctx, chatID, n.maxHistory)
		if err != nil {
			log.Warnf("failed to load conversation history: %v", err)
			history = nil
		}
	}
	if len(history) == 0 {
		history = []domain.ConversationMessage{{Role: "user", Content: userMessage}}
	}

	reply, err := n.callLLM(ctx, buildMessages(systemPrompt, history))
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("narrator unavailable: %w", err)
	}

	if n.convStore != nil {
		if err := n.convStore.AppendMessage(ctx, chatID, "assistant", reply); err != nil {
			log.Warnf("failed to store assistant reply: %v", err)
		}
	}
	return reply, nil
}

func (n *Narrator) gatherContext(ctx context.Context, symbols []string) string {
	ctx, span := n.tracer.Start(ctx, "narrator.gather-context")
	defer span.End()

	var analyses []*domain.SymbolAnalysis
	levels := make(map[string][]domain.KeyLevel)
	for _, sym := range symbols {
		a, err := n.analyses.Analyze(ctx, sym, defaultInterval)
		if err != nil {
			log.Warn("analysis unavailable for context", "symbol", sym, "err", err)
			continue
		}
		analyses = append(analyses, a)
		if lv, err := n.analyses.Levels(ctx, sym, defaultInterval); err == nil {
			levels[sym] = lv
		}
	}
	return FormatAnalysisContext(analyses, levels)
}

func buildMessages(systemPrompt string, history []domain.ConversationMessage) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+1)
	messages = append(messages, openai.SystemMessage(systemPrompt))
	for _, msg := range history {
		switch msg.Role {
		case "user":
			messages = append(messages, openai.UserMessage(msg.Content))
		case "assistant":
			messages = append(messages, openai.AssistantMessage(msg.Content))
		}
	}
	return messages
}

func (n *Narrator) callLLM(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	ctx, span := n.tracer.Start(ctx, "narrator.llm-call")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", n.model),
		attribute.Int("llm.message_count", len(messages)),
	)

	completion, err := n.llm.CreateChatCompletion(ctx, openai.ChatCompletionNewParams{
		Model:    n.model,
		Messages: messages,
	})
	if err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("no choices in LLM response")
	}

	reply := completion.Choices[0].Message.Content
	span.SetAttributes(attribute.Int("llm.reply_length", len(reply)))
	return reply, nil
}

// openaiClient wraps the official SDK's chat completions service.
type openaiClient struct {
	client openai.Client
}

func NewOpenAIClient(apiKey string) LLMClient {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &openaiClient{client: client}
}

func (c *openaiClient) CreateChatCompletion(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
) (*openai.ChatCompletion, error) {
	return c.client.Chat.Completions.New(ctx, params)
}
