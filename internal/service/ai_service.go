package service

import (
	"context"
	"fmt"
	"log"

	"lmsadmin/internal/aiclient"
	"lmsadmin/internal/domain"
)

// Оценка расхода до запроса: реальные цифры известны только после ответа
// модели, для предварительной проверки квоты берется грубая верхняя граница.
const estimatedTokensPerRequest = 4096

type Completer interface {
	Complete(ctx context.Context, system, prompt string, maxTokens int) (*aiclient.Completion, error)
}

type TokenAccountant interface {
	Check(ctx context.Context, userID string, tokens int64) error
	Register(ctx context.Context, userID string, tokens int64, model string, prov domain.Provenance) error
}

// AIService - прокси к языковой модели с учетом расхода токенов по квоте
// филиала. Квота проверяется до запроса по оценке, фактический расход
// регистрируется после ответа.
type AIService struct {
	client Completer
	tokens TokenAccountant
}

func NewAIService(client Completer, tokens TokenAccountant) *AIService {
	return &AIService{
		client: client,
		tokens: tokens,
	}
}

// Complete выполняет запрос к модели от имени пользователя
func (s *AIService) Complete(ctx context.Context, userID, system, prompt string, maxTokens int, prov domain.Provenance) (*aiclient.Completion, error) {
	if err := s.tokens.Check(ctx, userID, estimatedTokensPerRequest); err != nil {
		return nil, err
	}

	completion, err := s.client.Complete(ctx, system, prompt, maxTokens)
	if err != nil {
		return nil, fmt.Errorf("failed to call model: %w", err)
	}

	// Ответ уже получен - ошибка учета не должна его терять
	if err := s.tokens.Register(ctx, userID, completion.Usage.Total(), completion.Model, prov); err != nil {
		log.Printf("[AI] failed to register token usage for user %s: %v", userID, err)
	}
	return completion, nil
}
