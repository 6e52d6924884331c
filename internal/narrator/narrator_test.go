package narrator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"signal-desk/internal/domain"

	"github.com/openai/openai-go"
	"go.opentelemetry.io/otel/trace"
)

var testTracer = trace.NewNoopTracerProvider().Tracer("test")

func replyWith(text string) *stubLLMClient {
	return &stubLLMClient{
		response: &openai.ChatCompletion{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Content: text}},
			},
		},
	}
}

func TestCommentaryHappyPath(t *testing.T) {
	llm := replyWith("BTC is extended above its bands")
	analyses := &stubAnalyses{analysis: sampleAnalysis()}
	n := New(testTracer, llm, analyses, nil, "gpt-4o-mini", 0)

	reply, err := n.Commentary(context.Background(), "BTCUSDT", "1h")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "BTC is extended above its bands" {
		t.Fatalf("unexpected reply %q", reply)
	}
	if len(llm.lastParams.Messages) != 2 {
		t.Fatalf("expected system + user message, got %d", len(llm.lastParams.Messages))
	}
	if llm.lastParams.Model != "gpt-4o-mini" {
		t.Fatalf("unexpected model %s", llm.lastParams.Model)
	}
}

func TestCommentaryAnalysisError(t *testing.T) {
	analyses := &stubAnalyses{err: domain.ErrEmptyInput}
	n := New(testTracer, replyWith("unused"), analyses, nil, "gpt-4o-mini", 0)

	_, err := n.Commentary(context.Background(), "BTCUSDT", "1h")
	if !errors.Is(err, domain.ErrEmptyInput) {
		t.Fatalf("expected analysis error to propagate, got %v", err)
	}
}

func TestCommentaryLLMError(t *testing.T) {
	n := New(testTracer, &stubLLMClient{err: errors.New("api down")}, &stubAnalyses{analysis: sampleAnalysis()}, nil, "m", 0)

	_, err := n.Commentary(context.Background(), "BTCUSDT", "1h")
	if err == nil || !strings.Contains(err.Error(), "narrator unavailable") {
		t.Fatalf("expected wrapped LLM error, got %v", err)
	}
}

func TestCommentaryEmptyChoices(t *testing.T) {
	llm := &stubLLMClient{response: &openai.ChatCompletion{}}
	n := New(testTracer, llm, &stubAnalyses{analysis: sampleAnalysis()}, nil, "m", 0)

	if _, err := n.Commentary(context.Background(), "BTCUSDT", "1h"); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestAskStoresConversation(t *testing.T) {
	store := &stubConvStore{}
	analyses := &stubAnalyses{analysis: sampleAnalysis()}
	n := New(testTracer, replyWith("BTC looks bullish"), analyses, store, "gpt-4o-mini", 20)

	reply, err := n.Ask(context.Background(), 123, "What about BTC?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "BTC looks bullish" {
		t.Fatalf("expected 'BTC looks bullish', got %q", reply)
	}
	if len(store.messages) != 2 || store.messages[0].role != "user" || store.messages[1].role != "assistant" {
		t.Fatalf("expected user then assistant stored, got %+v", store.messages)
	}
	if len(analyses.analyzed) != 1 || analyses.analyzed[0] != "BTCUSDT" {
		t.Fatalf("expected BTCUSDT analysis for context, got %v", analyses.analyzed)
	}
}

func TestAskLLMErrorStillStoresUserMessage(t *testing.T) {
	store := &stubConvStore{}
	n := New(testTracer, &stubLLMClient{err: errors.New("api down")}, &stubAnalyses{}, store, "m", 20)

	if _, err := n.Ask(context.Background(), 123, "What looks good?"); err == nil {
		t.Fatal("expected error from LLM failure")
	}
	if len(store.messages) != 1 || store.messages[0].role != "user" {
		t.Fatalf("expected only the user message stored, got %+v", store.messages)
	}
}

func TestAskStoreFailureNonFatal(t *testing.T) {
	store := &stubConvStore{appendErr: errors.New("db down"), recentErr: errors.New("db down")}
	n := New(testTracer, replyWith("response"), &stubAnalyses{}, store, "m", 20)

	reply, err := n.Ask(context.Background(), 123, "test")
	if err != nil {
		t.Fatalf("store failure should be non-fatal, got: %v", err)
	}
	if reply != "response" {
		t.Fatalf("expected 'response', got %q", reply)
	}
}

func TestAskWithoutStore(t *testing.T) {
	llm := replyWith("fresh start")
	n := New(testTracer, llm, &stubAnalyses{err: errors.New("feed down")}, nil, "m", 20)

	reply, err := n.Ask(context.Background(), 999, "how is sol?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "fresh start" {
		t.Fatalf("expected 'fresh start', got %q", reply)
	}
	if len(llm.lastParams.Messages) != 2 {
		t.Fatalf("expected system + question, got %d messages", len(llm.lastParams.Messages))
	}
}

func TestNewDefaultMaxHistory(t *testing.T) {
	n := New(testTracer, &stubLLMClient{}, &stubAnalyses{}, nil, "m", 0)
	if n.maxHistory != 20 {
		t.Fatalf("expected default maxHistory=20, got %d", n.maxHistory)
	}
}

// --- stubs ---

type stubLLMClient struct {
	response   *openai.ChatCompletion
	err        error
	lastParams openai.ChatCompletionNewParams
}

func (s *stubLLMClient) CreateChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	s.lastParams = params
	return s.response, s.err
}

type stubAnalyses struct {
	analysis *domain.SymbolAnalysis
	levels   []domain.KeyLevel
	err      error
	analyzed []string
}

func (s *stubAnalyses) Analyze(ctx context.Context, symbol, interval string) (*domain.SymbolAnalysis, error) {
	s.analyzed = append(s.analyzed, symbol)
	if s.err != nil {
		return nil, s.err
	}
	return s.analysis, nil
}

func (s *stubAnalyses) Levels(ctx context.Context, symbol, interval string) ([]domain.KeyLevel, error) {
	return s.levels, s.err
}

type storedMsg struct {
	chatID  int64
	role    string
	content string
}

type stubConvStore struct {
	messages  []storedMsg
	appendErr error
	recentErr error
}

func (s *stubConvStore) AppendMessage(ctx context.Context, chatID int64, role, content string) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.messages = append(s.messages, storedMsg{chatID: chatID, role: role, content: content})
	return nil
}

func (s *stubConvStore) RecentMessages(ctx context.Context, chatID int64, limit int) ([]domain.ConversationMessage, error) {
	if s.recentErr != nil {
		return nil, s.recentErr
	}
	var msgs []domain.ConversationMessage
	for _, m := range s.messages {
		if m.chatID == chatID {
			msgs = append(msgs, domain.ConversationMessage{Role: m.role, Content: m.content, CreatedAt: time.Now()})
		}
	}
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}
