package ai

import (
	"context"
	"fmt"

	"aichatgo/internal/config"
	"aichatgo/internal/models"
	"aichatgo/internal/moderation"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"
)

// Service wraps the configured chat model behind a streaming interface.
// The gemini provider carries the same fixed safety thresholds as the
// moderation gate, so the provider refuses medium-or-higher-risk output.
type Service struct {
	chatModel model.BaseChatModel
}

// NewService builds the chat model selected by cfg.Chat.Provider.
func NewService(ctx context.Context, cfg *config.Config) (*Service, error) {
	provider := cfg.Chat.Provider
	provCfg, ok := cfg.Providers[provider]
	if !ok {
		return nil, fmt.Errorf("provider %s not configured", provider)
	}

	var (
		chatModel model.BaseChatModel
		err       error
	)
	switch provider {
	case "openai":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: provCfg.BaseURL,
			Model:   provCfg.Model,
			APIKey:  provCfg.APIKey,
		})
	case "gemini":
		var client *genai.Client
		client, err = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey: provCfg.APIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client:         client,
			Model:          provCfg.Model,
			SafetySettings: moderation.SafetySettings(),
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    provCfg.APIKey,
			Model:     provCfg.Model,
			BaseURL:   baseURLPtr,
			MaxTokens: 3000,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", provider, err)
	}

	return &Service{chatModel: chatModel}, nil
}

// Stream hands the ordered history to the provider and returns its lazy,
// non-restartable fragment stream.
func (s *Service) Stream(ctx context.Context, history []*models.Message) (*schema.StreamReader[*schema.Message], error) {
	stream, err := s.chatModel.Stream(ctx, convertMessages(history))
	if err != nil {
		return nil, fmt.Errorf("generation stream: %w", err)
	}
	return stream, nil
}

func convertMessages(history []*models.Message) []*schema.Message {
	messages := make([]*schema.Message, 0, len(history))
	for _, msg := range history {
		var role schema.RoleType
		switch msg.Role {
		case models.RoleAssistant:
			role = schema.Assistant
		default:
			role = schema.User
		}
		messages = append(messages, &schema.Message{
			Role:    role,
			Content: msg.Content,
		})
	}
	return messages
}
