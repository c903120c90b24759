package relay

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Tathastu2004/Recilens-Nexus-AI-Chatbot-sub000/internal/service/contextcache"
	"github.com/Tathastu2004/Recilens-Nexus-AI-Chatbot-sub000/internal/storage/memory"
	"github.com/Tathastu2004/Recilens-Nexus-AI-Chatbot-sub000/pkg/llm"

	"go.uber.org/zap"
)

// fakeLLM отдаёт заранее заданные чанки; gate позволяет держать стрим
// открытым, пока тест не разрешит продолжить
type fakeLLM struct {
	chunks []llm.StreamChunk
	gate   chan struct{}
}

func (f *fakeLLM) ChatCompletion(ctx context.Context, messages []llm.Message) (*llm.ChatResponse, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeLLM) ChatCompletionStream(ctx context.Context, messages []llm.Message) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk)
	go func() {
		defer close(ch)
		if f.gate != nil {
			select {
			case <-f.gate:
			case <-ctx.Done():
				return
			}
		}
		for _, chunk := range f.chunks {
			select {
			case ch <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func newTestService(store *memory.MemoryStorage, client llm.LLMClient) (*Service, *contextcache.Cache) {
	cache := contextcache.NewCache(nil,
		contextcache.NewLocalStore(time.Minute, zap.NewNop()),
		contextcache.DefaultConfig(), zap.NewNop())
	svc := NewService(store, store, cache, client, DefaultConfig(), zap.NewNop())
	return svc, cache
}

// collectStream вычитывает канал до закрытия
func collectStream(t *testing.T, ch <-chan StreamResponse) (content string, done bool, streamErr error) {
	t.Helper()

	var sb strings.Builder
	for resp := range ch {
		sb.WriteString(resp.Content)
		if resp.Done {
			done = true
		}
		if resp.Error != nil {
			streamErr = resp.Error
		}
	}
	return sb.String(), done, streamErr
}

func contentChunks(parts ...string) []llm.StreamChunk {
	chunks := make([]llm.StreamChunk, 0, len(parts)+1)
	for _, p := range parts {
		chunks = append(chunks, llm.StreamChunk{Content: p})
	}
	return append(chunks, llm.StreamChunk{Done: true})
}

func TestCompletedExchangePersistsBothTurns(t *testing.T) {
	store := memory.New()
	svc, cache := newTestService(store, &fakeLLM{chunks: contentChunks("Hel", "lo, ", "world")})

	ctx := context.Background()
	ch, err := svc.ProcessMessageStream(ctx, ProcessMessageRequest{
		SessionID: "s1",
		UserID:    "alice",
		Message:   "greet me",
	})
	if err != nil {
		t.Fatalf("processMessageStream failed: %v", err)
	}

	content, done, streamErr := collectStream(t, ch)
	if streamErr != nil {
		t.Fatalf("unexpected stream error: %v", streamErr)
	}
	if !done {
		t.Fatal("stream ended without completion")
	}
	if content != "Hello, world" {
		t.Errorf("forwarded content = %q, want %q", content, "Hello, world")
	}

	// Сохранённый ответ — ровно конкатенация отданных чанков
	messages, err := store.GetMessages(ctx, "s1", 10)
	if err != nil {
		t.Fatalf("getMessages failed: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("got %d persisted messages, want 2", len(messages))
	}
	if messages[0].Role != "user" || messages[0].Content != "greet me" {
		t.Errorf("first persisted message = %s/%q", messages[0].Role, messages[0].Content)
	}
	if messages[1].Role != "assistant" || messages[1].Content != content {
		t.Errorf("persisted assistant content %q differs from forwarded %q",
			messages[1].Content, content)
	}
	if messages[1].IsError {
		t.Error("completed exchange must not carry an error flag")
	}

	// Оба хода попали в контекстное окно, в порядке обмена
	turns, err := cache.GetRecent(ctx, "s1", "alice")
	if err != nil {
		t.Fatalf("getRecent failed: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("got %d context turns, want 2", len(turns))
	}
	if turns[0].Role != "user" || turns[1].Role != "assistant" {
		t.Errorf("context order = [%s, %s], want [user, assistant]",
			turns[0].Role, turns[1].Role)
	}
}

func TestSecondConcurrentSendIsRejected(t *testing.T) {
	store := memory.New()
	gate := make(chan struct{})
	svc, _ := newTestService(store, &fakeLLM{chunks: contentChunks("ok"), gate: gate})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := svc.ProcessMessageStream(ctx, ProcessMessageRequest{
		SessionID: "busy", UserID: "u", Message: "first",
	})
	if err != nil {
		t.Fatalf("first send failed: %v", err)
	}

	// Сессия занята живым обменом
	_, err = svc.ProcessMessageStream(ctx, ProcessMessageRequest{
		SessionID: "busy", UserID: "u", Message: "second",
	})
	if !errors.Is(err, ErrSessionBusy) {
		t.Fatalf("second send returned %v, want ErrSessionBusy", err)
	}

	// Другая сессия не затронута
	other, err := svc.ProcessMessageStream(ctx, ProcessMessageRequest{
		SessionID: "free", UserID: "u", Message: "hello",
	})
	if err != nil {
		t.Fatalf("send to another session rejected: %v", err)
	}
	collectStream(t, other)

	close(gate)
	collectStream(t, ch)

	// После завершения обмена сессия снова свободна
	ch2, err := svc.ProcessMessageStream(ctx, ProcessMessageRequest{
		SessionID: "busy", UserID: "u", Message: "third",
	})
	if err != nil {
		t.Fatalf("send after completion rejected: %v", err)
	}
	collectStream(t, ch2)
}

func TestCancellationPersistsNothing(t *testing.T) {
	store := memory.New()
	gate := make(chan struct{})
	svc, cache := newTestService(store, &fakeLLM{chunks: contentChunks("never"), gate: gate})

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := svc.ProcessMessageStream(ctx, ProcessMessageRequest{
		SessionID: "s-cancel", UserID: "u", Message: "hi",
	})
	if err != nil {
		t.Fatalf("processMessageStream failed: %v", err)
	}

	// Клиент отключается до первого чанка
	cancel()
	_, done, _ := collectStream(t, ch)
	if done {
		t.Error("cancelled exchange must not report completion")
	}

	count, _ := store.GetMessageCount(context.Background(), "s-cancel")
	if count != 0 {
		t.Errorf("cancelled exchange persisted %d messages, want 0", count)
	}

	turns, _ := cache.GetRecent(context.Background(), "s-cancel", "u")
	if len(turns) != 0 {
		t.Errorf("cancelled exchange polluted context window: %d turns", len(turns))
	}

	snapshot := svc.Metrics()
	if snapshot.Cancellations != 1 {
		t.Errorf("cancellations = %d, want 1", snapshot.Cancellations)
	}
}

// steppedLLM отдаёт первый чанк сразу, остальные — после закрытия proceed.
// Позволяет отменить обмен строго между чанками
type steppedLLM struct {
	proceed chan struct{}
}

func (f *steppedLLM) ChatCompletion(ctx context.Context, messages []llm.Message) (*llm.ChatResponse, error) {
	return nil, errors.New("not implemented")
}

func (f *steppedLLM) ChatCompletionStream(ctx context.Context, messages []llm.Message) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk)
	go func() {
		defer close(ch)
		ch <- llm.StreamChunk{Content: "lead "}
		<-f.proceed
		ch <- llm.StreamChunk{Content: "tail"}
		ch <- llm.StreamChunk{Done: true}
	}()
	return ch, nil
}

func TestCancellationAfterForwardedChunksPersistsNothing(t *testing.T) {
	store := memory.New()
	fake := &steppedLLM{proceed: make(chan struct{})}
	svc, cache := newTestService(store, fake)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := svc.ProcessMessageStream(ctx, ProcessMessageRequest{
		SessionID: "s-mid-cancel", UserID: "u", Message: "hi",
	})
	if err != nil {
		t.Fatalf("processMessageStream failed: %v", err)
	}

	// Первый чанк дошёл до клиента
	first := <-ch
	if first.Content != "lead " {
		t.Fatalf("first forwarded chunk = %q, want %q", first.Content, "lead ")
	}

	// Клиент отключается после k>0 чанков; upstream продолжает слать
	cancel()
	close(fake.proceed)

	_, done, _ := collectStream(t, ch)
	if done {
		t.Error("cancelled exchange must not report completion")
	}

	// Частичный текст не сохраняется и не попадает в контекст
	count, _ := store.GetMessageCount(context.Background(), "s-mid-cancel")
	if count != 0 {
		t.Errorf("mid-stream cancellation persisted %d messages, want 0", count)
	}
	turns, _ := cache.GetRecent(context.Background(), "s-mid-cancel", "u")
	if len(turns) != 0 {
		t.Errorf("mid-stream cancellation polluted context window: %d turns", len(turns))
	}

	snapshot := svc.Metrics()
	if snapshot.Cancellations != 1 {
		t.Errorf("cancellations = %d, want 1", snapshot.Cancellations)
	}
	if snapshot.TotalExchanges != 0 {
		t.Errorf("total_exchanges = %d, want 0", snapshot.TotalExchanges)
	}
}

func TestFailureAfterPartialContentPersistsFlaggedTurn(t *testing.T) {
	store := memory.New()
	upstreamErr := errors.New("engine connection reset")
	svc, cache := newTestService(store, &fakeLLM{chunks: []llm.StreamChunk{
		{Content: "partial "},
		{Content: "answer"},
		{Error: upstreamErr},
	}})

	ctx := context.Background()
	ch, err := svc.ProcessMessageStream(ctx, ProcessMessageRequest{
		SessionID: "s-fail", UserID: "u", Message: "question",
	})
	if err != nil {
		t.Fatalf("processMessageStream failed: %v", err)
	}

	content, done, streamErr := collectStream(t, ch)
	if done {
		t.Error("failed exchange must not report completion")
	}
	if streamErr == nil {
		t.Fatal("failure was not surfaced to the stream consumer")
	}
	// Уже отданные чанки остаются у клиента
	if content != "partial answer" {
		t.Errorf("forwarded partial content = %q", content)
	}

	messages, _ := store.GetMessages(ctx, "s-fail", 10)
	if len(messages) != 2 {
		t.Fatalf("got %d persisted messages, want 2", len(messages))
	}
	if !messages[1].IsError {
		t.Error("partial assistant turn must carry the error flag")
	}
	if messages[1].Content != "partial answer" {
		t.Errorf("persisted partial content = %q", messages[1].Content)
	}

	// Сломанный ход не отравляет будущий контекст
	turns, _ := cache.GetRecent(ctx, "s-fail", "u")
	if len(turns) != 0 {
		t.Errorf("failed exchange appended %d turns to context", len(turns))
	}
}

func TestFailureBeforeFirstChunkPersistsNothing(t *testing.T) {
	store := memory.New()
	svc, _ := newTestService(store, &fakeLLM{chunks: []llm.StreamChunk{
		{Error: errors.New("engine rejected request")},
	}})

	ctx := context.Background()
	ch, err := svc.ProcessMessageStream(ctx, ProcessMessageRequest{
		SessionID: "s-early-fail", UserID: "u", Message: "question",
	})
	if err != nil {
		t.Fatalf("processMessageStream failed: %v", err)
	}

	_, _, streamErr := collectStream(t, ch)
	if streamErr == nil {
		t.Fatal("failure was not surfaced")
	}

	count, _ := store.GetMessageCount(ctx, "s-early-fail")
	if count != 0 {
		t.Errorf("early failure persisted %d messages, want 0", count)
	}
}

func TestTruncatedStreamIsFailure(t *testing.T) {
	store := memory.New()
	// Канал закрывается без Done-маркера
	svc, _ := newTestService(store, &fakeLLM{chunks: []llm.StreamChunk{
		{Content: "cut "},
	}})

	ctx := context.Background()
	ch, err := svc.ProcessMessageStream(ctx, ProcessMessageRequest{
		SessionID: "s-trunc", UserID: "u", Message: "question",
	})
	if err != nil {
		t.Fatalf("processMessageStream failed: %v", err)
	}

	_, done, streamErr := collectStream(t, ch)
	if done {
		t.Error("truncated stream must not report completion")
	}
	if !errors.Is(streamErr, ErrStreamTruncated) {
		t.Errorf("stream error = %v, want ErrStreamTruncated", streamErr)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		req     ProcessMessageRequest
		wantErr error
	}{
		{"empty session", ProcessMessageRequest{Message: "hi"}, ErrEmptySessionID},
		{"blank session", ProcessMessageRequest{SessionID: "   ", Message: "hi"}, ErrEmptySessionID},
		{"empty message", ProcessMessageRequest{SessionID: "s"}, ErrEmptyMessage},
		{"blank message", ProcessMessageRequest{SessionID: "s", Message: " \n "}, ErrEmptyMessage},
		{"oversized message", ProcessMessageRequest{
			SessionID: "s", Message: strings.Repeat("a", maxMessageLength+1),
		}, ErrMessageTooLong},
		{"oversized session id", ProcessMessageRequest{
			SessionID: strings.Repeat("s", maxSessionIDLength+1), Message: "hi",
		}, ErrSessionTooLong},
		{"valid", ProcessMessageRequest{SessionID: "s", Message: "hi"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateProcessMessageRequest(tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestEmptyUserIDIsNormalized(t *testing.T) {
	store := memory.New()
	svc, cache := newTestService(store, &fakeLLM{chunks: contentChunks("hi")})

	ctx := context.Background()
	ch, err := svc.ProcessMessageStream(ctx, ProcessMessageRequest{
		SessionID: "s-anon", Message: "hello",
	})
	if err != nil {
		t.Fatalf("processMessageStream failed: %v", err)
	}
	collectStream(t, ch)

	turns, err := cache.GetRecent(ctx, "s-anon", "anonymous")
	if err != nil {
		t.Fatalf("getRecent failed: %v", err)
	}
	if len(turns) != 2 {
		t.Errorf("anonymous window has %d turns, want 2", len(turns))
	}
}

func TestDeleteSessionClearsMessagesAndContext(t *testing.T) {
	store := memory.New()
	svc, cache := newTestService(store, &fakeLLM{chunks: contentChunks("bye")})

	ctx := context.Background()
	ch, _ := svc.ProcessMessageStream(ctx, ProcessMessageRequest{
		SessionID: "s-del", UserID: "u", Message: "hello",
	})
	collectStream(t, ch)

	if err := svc.DeleteSession(ctx, "s-del", "u"); err != nil {
		t.Fatalf("deleteSession failed: %v", err)
	}

	count, _ := store.GetMessageCount(ctx, "s-del")
	if count != 0 {
		t.Errorf("messages survived deletion: %d", count)
	}
	turns, _ := cache.GetRecent(ctx, "s-del", "u")
	if len(turns) != 0 {
		t.Errorf("context window survived deletion: %d turns", len(turns))
	}
}
