package chat

import (
	"context"
	"errors"
	"math"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/circuitsapp/circuits-backend/internal/ai"
)

type fakeProvider struct {
	lastModel  string
	last       []ai.Message
	completion ai.Completion
	err        error
}

func (p *fakeProvider) Chat(ctx context.Context, model string, messages []ai.Message) (*ai.Completion, error) {
	_ = ctx
	p.lastModel = model
	// copy to avoid mutations
	p.last = append([]ai.Message(nil), messages...)
	if p.err != nil {
		return nil, p.err
	}
	c := p.completion
	return &c, nil
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Session{}, &Message{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func uintPtr(v uint64) *uint64 { return &v }

func newTestService(t *testing.T, prov ai.Provider) (*Service, *Repo) {
	t.Helper()
	repo := NewRepo(openTestDB(t))
	return NewService(repo, prov), repo
}

func TestSubmitTurn_WritesUserAndAssistant(t *testing.T) {
	prov := &fakeProvider{completion: ai.Completion{
		Content:          "Hi there!",
		PromptTokens:     10,
		CompletionTokens: 7,
	}}
	svc, repo := newTestService(t, prov)

	sess, err := svc.CreateSession(context.Background(), nil, "t", "gpt-3.5-turbo")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	res, err := svc.SubmitTurn(context.Background(), nil, sess.SessionID, "hello")
	if err != nil {
		t.Fatalf("submit turn: %v", err)
	}
	if res.Content != "Hi there!" {
		t.Fatalf("unexpected content: %q", res.Content)
	}
	if res.Tokens != 7 {
		t.Fatalf("expected 7 output tokens, got %d", res.Tokens)
	}
	wantCost := (10.0/1000)*0.0005 + (7.0/1000)*0.0015
	if math.Abs(res.Cost-wantCost) > 1e-12 {
		t.Fatalf("turn cost = %v, want %v", res.Cost, wantCost)
	}

	msgs, err := repo.ListSessionMessages(context.Background(), sess.SessionID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	// "hello" is 5 chars -> estimate 1 token, zero cost
	if msgs[0].Role != "user" || msgs[0].Tokens != 1 || msgs[0].Cost != 0 {
		t.Fatalf("unexpected user msg: role=%q tokens=%d cost=%v", msgs[0].Role, msgs[0].Tokens, msgs[0].Cost)
	}
	if msgs[1].Role != "assistant" || msgs[1].Tokens != 7 {
		t.Fatalf("unexpected assistant msg: role=%q tokens=%d", msgs[1].Role, msgs[1].Tokens)
	}
	if msgs[1].MessageID != res.MessageID {
		t.Fatalf("result message id %q does not match stored %q", res.MessageID, msgs[1].MessageID)
	}

	// the provider sees the persisted history plus the submitted text as the
	// final element
	if len(prov.last) != 2 {
		t.Fatalf("expected provider to receive 2 transcript entries, got %d", len(prov.last))
	}
	final := prov.last[len(prov.last)-1]
	if final.Role != "user" || final.Content != "hello" {
		t.Fatalf("unexpected final transcript entry: role=%q content=%q", final.Role, final.Content)
	}
}

func TestSubmitTurn_AggregatesMatchMessageSums(t *testing.T) {
	svc, repo := newTestService(t, nil)
	owner := uintPtr(77)

	sess, err := svc.CreateSession(context.Background(), owner, "sums", "gpt-4")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	// make the provider report prompt usage equal to the local estimate so the
	// session aggregate must equal the message-level sum exactly
	turns := []struct {
		text       string
		completion int
	}{
		{"hello world!", 9},
		{"and another message", 4},
		{"ok", 12},
	}
	for _, turn := range turns {
		prov := &fakeProvider{completion: ai.Completion{
			Content:          "reply",
			PromptTokens:     EstimateTokens(turn.text),
			CompletionTokens: turn.completion,
		}}
		svc = NewService(repo, prov)
		if _, err := svc.SubmitTurn(context.Background(), owner, sess.SessionID, turn.text); err != nil {
			t.Fatalf("submit turn %q: %v", turn.text, err)
		}
	}

	got, err := repo.GetSession(context.Background(), owner, sess.SessionID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	msgs, err := repo.ListSessionMessages(context.Background(), sess.SessionID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}

	var sumTokens int
	var sumCost float64
	for _, m := range msgs {
		sumTokens += m.Tokens
		sumCost += m.Cost
	}
	if got.TotalTokens != sumTokens {
		t.Fatalf("session total_tokens=%d, message sum=%d", got.TotalTokens, sumTokens)
	}
	if math.Abs(got.TotalCost-sumCost) > 1e-9 {
		t.Fatalf("session total_cost=%v, message sum=%v", got.TotalCost, sumCost)
	}
	if got.TotalTokens == 0 {
		t.Fatalf("expected non-zero aggregate after three turns")
	}
}

func TestSubmitTurn_OwnershipBoundary(t *testing.T) {
	prov := &fakeProvider{completion: ai.Completion{Content: "x"}}
	svc, _ := newTestService(t, prov)

	anonSess, err := svc.CreateSession(context.Background(), nil, "anon", "gpt-3.5-turbo")
	if err != nil {
		t.Fatalf("create anon session: %v", err)
	}
	ownedSess, err := svc.CreateSession(context.Background(), uintPtr(1), "owned", "gpt-3.5-turbo")
	if err != nil {
		t.Fatalf("create owned session: %v", err)
	}

	// identified caller must not reach an anonymous session
	if _, err := svc.SubmitTurn(context.Background(), uintPtr(1), anonSess.SessionID, "hi"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected record-not-found for identified caller on anon session, got %v", err)
	}
	// anonymous caller must not reach an owned session
	if _, err := svc.SubmitTurn(context.Background(), nil, ownedSess.SessionID, "hi"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected record-not-found for anon caller on owned session, got %v", err)
	}
	// a different identity must not reach another user's session
	if _, _, err := svc.GetSessionWithMessages(context.Background(), uintPtr(2), ownedSess.SessionID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected record-not-found for foreign identity, got %v", err)
	}
}

func TestSubmitTurn_SessionModelIsAuthoritative(t *testing.T) {
	prov := &fakeProvider{completion: ai.Completion{
		Content:          "reply",
		PromptTokens:     1000,
		CompletionTokens: 1000,
	}}
	svc, _ := newTestService(t, prov)

	sess, err := svc.CreateSession(context.Background(), nil, "t", "gpt-4")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	res, err := svc.SubmitTurn(context.Background(), nil, sess.SessionID, "question")
	if err != nil {
		t.Fatalf("submit turn: %v", err)
	}
	if prov.lastModel != "gpt-4" {
		t.Fatalf("provider called with model %q, want gpt-4", prov.lastModel)
	}
	want := 0.03 + 0.06 // 1000 input + 1000 output at gpt-4 rates
	if math.Abs(res.Cost-want) > 1e-12 {
		t.Fatalf("cost=%v, want gpt-4 rate %v", res.Cost, want)
	}
}

func TestSubmitTurn_GenerationFailureKeepsUserMessage(t *testing.T) {
	prov := &fakeProvider{err: errors.New("rate limited")}
	svc, repo := newTestService(t, prov)

	sess, err := svc.CreateSession(context.Background(), nil, "t", "gpt-3.5-turbo")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	_, err = svc.SubmitTurn(context.Background(), nil, sess.SessionID, "doomed")
	if !errors.Is(err, ErrGeneration) {
		t.Fatalf("expected ErrGeneration, got %v", err)
	}

	// the user message stays; no assistant message, no aggregate movement
	msgs, err := repo.ListSessionMessages(context.Background(), sess.SessionID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Role != "user" {
		t.Fatalf("expected exactly the user message to remain, got %d messages", len(msgs))
	}
	got, err := repo.GetSession(context.Background(), nil, sess.SessionID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.TotalTokens != 0 || got.TotalCost != 0 {
		t.Fatalf("aggregates moved on failed turn: tokens=%d cost=%v", got.TotalTokens, got.TotalCost)
	}
}

func TestDeleteSession_CascadesToMessages(t *testing.T) {
	prov := &fakeProvider{completion: ai.Completion{Content: "bye", CompletionTokens: 1}}
	svc, repo := newTestService(t, prov)

	sess, err := svc.CreateSession(context.Background(), uintPtr(5), "t", "gpt-3.5-turbo")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	res, err := svc.SubmitTurn(context.Background(), uintPtr(5), sess.SessionID, "hello")
	if err != nil {
		t.Fatalf("submit turn: %v", err)
	}

	if err := svc.DeleteSession(context.Background(), uintPtr(5), sess.SessionID); err != nil {
		t.Fatalf("delete session: %v", err)
	}

	if _, err := repo.GetSession(context.Background(), uintPtr(5), sess.SessionID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected session gone, got %v", err)
	}
	if _, err := repo.GetMessageByMessageID(context.Background(), res.MessageID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected messages gone, got %v", err)
	}
}

func TestUpdateSession(t *testing.T) {
	svc, _ := newTestService(t, nil)

	sess, err := svc.CreateSession(context.Background(), nil, "before", "gpt-3.5-turbo")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	title := "after"
	updated, err := svc.UpdateSession(context.Background(), nil, sess.SessionID, &title, nil)
	if err != nil {
		t.Fatalf("update session: %v", err)
	}
	if updated.Title != "after" {
		t.Fatalf("title=%q, want after", updated.Title)
	}

	if _, err := svc.UpdateSession(context.Background(), nil, sess.SessionID, nil, nil); !errors.Is(err, ErrNoFields) {
		t.Fatalf("expected ErrNoFields, got %v", err)
	}

	bad := "gpt-9000"
	if _, err := svc.UpdateSession(context.Background(), nil, sess.SessionID, nil, &bad); !errors.Is(err, ErrUnsupportedModel) {
		t.Fatalf("expected ErrUnsupportedModel, got %v", err)
	}
}

func TestCreateSession_UnsupportedModel(t *testing.T) {
	svc, _ := newTestService(t, nil)
	if _, err := svc.CreateSession(context.Background(), nil, "t", "llama3"); !errors.Is(err, ErrUnsupportedModel) {
		t.Fatalf("expected ErrUnsupportedModel, got %v", err)
	}
}

func TestUsage_SumsCallerScope(t *testing.T) {
	svc, repo := newTestService(t, nil)
	owner := uintPtr(901)

	for i := 0; i < 2; i++ {
		sess, err := svc.CreateSession(context.Background(), owner, "u", "gpt-3.5-turbo")
		if err != nil {
			t.Fatalf("create session: %v", err)
		}
		prov := &fakeProvider{completion: ai.Completion{
			Content:          "r",
			PromptTokens:     100,
			CompletionTokens: 50,
		}}
		svc = NewService(repo, prov)
		if _, err := svc.SubmitTurn(context.Background(), owner, sess.SessionID, "hello there"); err != nil {
			t.Fatalf("submit turn: %v", err)
		}
	}

	usage, err := svc.Usage(context.Background(), owner)
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if usage.TotalTokens != 300 {
		t.Fatalf("usage tokens=%d, want 300", usage.TotalTokens)
	}
	wantCost := 2 * ((100.0/1000)*0.0005 + (50.0/1000)*0.0015)
	if math.Abs(usage.TotalCost-wantCost) > 1e-9 {
		t.Fatalf("usage cost=%v, want %v", usage.TotalCost, wantCost)
	}
}
