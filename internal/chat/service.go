package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/circuitsapp/circuits-backend/internal/ai"
	"github.com/circuitsapp/circuits-backend/internal/common"
)

// ErrGeneration marks a completion-provider failure. The user message
// persisted before the call stays behind; there is no rollback and no retry.
var ErrGeneration = errors.New("completion provider failed")

var ErrUnsupportedModel = errors.New("unsupported model")

var ErrNoFields = errors.New("no fields to update")

type Service struct {
	repo     *Repo
	provider ai.Provider
}

func NewService(repo *Repo, provider ai.Provider) *Service {
	return &Service{repo: repo, provider: provider}
}

// TurnResult is what one completed turn reports back to the client.
type TurnResult struct {
	SessionID string  `json:"session_id"`
	MessageID string  `json:"message_id"`
	Content   string  `json:"content"`
	Tokens    int     `json:"tokens"`
	Cost      float64 `json:"cost"`
}

func (s *Service) CreateSession(ctx context.Context, owner *uint64, title, model string) (*Session, error) {
	if !IsSupportedModel(model) {
		return nil, ErrUnsupportedModel
	}

	sid, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	session := &Session{
		SessionID: sid,
		UserID:    owner,
		Title:     title,
		Model:     model,
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *Service) ListSessions(ctx context.Context, owner *uint64) ([]Session, error) {
	return s.repo.ListSessions(ctx, owner)
}

// GetSessionWithMessages resolves a session within the caller's ownership
// scope and loads its full history. A session owned by someone else is
// indistinguishable from one that does not exist.
func (s *Service) GetSessionWithMessages(ctx context.Context, owner *uint64, sessionID string) (*Session, []Message, error) {
	sess, err := s.repo.GetSession(ctx, owner, sessionID)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := s.repo.ListSessionMessages(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	return sess, msgs, nil
}

func (s *Service) UpdateSession(ctx context.Context, owner *uint64, sessionID string, title, model *string) (*Session, error) {
	sess, err := s.repo.GetSession(ctx, owner, sessionID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if title != nil {
		updates["title"] = *title
	}
	if model != nil {
		if !IsSupportedModel(*model) {
			return nil, ErrUnsupportedModel
		}
		updates["model"] = *model
	}
	if len(updates) == 0 {
		return nil, ErrNoFields
	}

	if err := s.repo.UpdateSession(ctx, sess.ID, updates); err != nil {
		return nil, err
	}
	return s.repo.GetSession(ctx, owner, sessionID)
}

func (s *Service) DeleteSession(ctx context.Context, owner *uint64, sessionID string) error {
	sess, err := s.repo.GetSession(ctx, owner, sessionID)
	if err != nil {
		return err
	}
	return s.repo.DeleteSession(ctx, sess)
}

// SubmitTurn runs one conversational turn: access check, user-message
// persistence, transcript assembly, completion call, accounting, aggregate
// update. Any failure terminates the turn; a generation failure leaves the
// already-persisted user message in place.
func (s *Service) SubmitTurn(ctx context.Context, owner *uint64, sessionID, message string) (*TurnResult, error) {
	// 1) access check within the caller's ownership scope
	sess, err := s.repo.GetSession(ctx, owner, sessionID)
	if err != nil {
		return nil, err
	}

	// 2) persist the user message with the local token estimate, cost 0
	userMsgID, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	userMsg := &Message{
		MessageID: userMsgID,
		SessionID: sessionID,
		UserID:    owner,
		Role:      "user",
		Content:   message,
		Tokens:    EstimateTokens(message),
		Cost:      0,
	}
	if err := s.repo.InsertMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	// 3) transcript = full ordered history plus this turn's text
	history, err := s.repo.ListSessionMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	transcript := make([]ai.Message, 0, len(history)+1)
	for _, m := range history {
		transcript = append(transcript, ai.Message{Role: m.Role, Content: m.Content})
	}
	transcript = append(transcript, ai.Message{Role: "user", Content: message})

	// 4) the session's stored model is authoritative, whatever the request declared
	completion, err := s.provider.Chat(ctx, sess.Model, transcript)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	// 5) authoritative accounting from provider-reported usage
	turnCost := Cost(sess.Model, completion.PromptTokens, completion.CompletionTokens)
	turnTokens := completion.PromptTokens + completion.CompletionTokens

	assistantMsgID, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	assistantMsg := &Message{
		MessageID: assistantMsgID,
		SessionID: sessionID,
		UserID:    owner,
		Role:      "assistant",
		Content:   completion.Content,
		Tokens:    completion.CompletionTokens,
		Cost:      turnCost,
	}
	if err := s.repo.AppendAssistantMessage(ctx, sess.ID, assistantMsg, turnTokens, turnCost); err != nil {
		return nil, fmt.Errorf("persist assistant message: %w", err)
	}

	return &TurnResult{
		SessionID: sessionID,
		MessageID: assistantMsg.MessageID,
		Content:   completion.Content,
		Tokens:    completion.CompletionTokens,
		Cost:      turnCost,
	}, nil
}

type UsageSummary struct {
	TotalTokens int64   `json:"total_tokens"`
	TotalCost   float64 `json:"total_cost"`
}

func (s *Service) Usage(ctx context.Context, owner *uint64) (*UsageSummary, error) {
	tokens, cost, err := s.repo.UsageTotals(ctx, owner)
	if err != nil {
		return nil, err
	}
	return &UsageSummary{TotalTokens: tokens, TotalCost: cost}, nil
}
