package handlers

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/circuitsapp/circuits-backend/internal/ai"
	"github.com/circuitsapp/circuits-backend/internal/chat"
	"github.com/circuitsapp/circuits-backend/internal/config"
	"github.com/circuitsapp/circuits-backend/internal/email"
	"github.com/circuitsapp/circuits-backend/internal/store/rabbitmq"
	"github.com/circuitsapp/circuits-backend/internal/store/redisstore"
)

type Handler struct {
	DB          *gorm.DB
	Cfg         config.Config
	Redis       *redisstore.Store
	Rabbit      *rabbitmq.Publisher
	SMTPSetting email.SMTPConfig
	ChatSvc     *chat.Service
}

func NewHandler(db *gorm.DB, cfg config.Config, rds *redisstore.Store, rabbit *rabbitmq.Publisher) *Handler {
	reg := ai.NewRegistry()
	reg.Register("openai", func(ctx context.Context) (ai.Provider, error) {
		_ = ctx
		return ai.NewOpenAIProvider(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey)
	})
	reg.Register("openrouter", func(ctx context.Context) (ai.Provider, error) {
		_ = ctx
		baseURL := cfg.OpenAIBaseURL
		if baseURL == "" {
			baseURL = "https://openrouter.ai/api/v1"
		}
		return ai.NewOpenAIProvider(baseURL, cfg.OpenAIAPIKey)
	})

	// single provider handle for the process lifetime
	provider, err := reg.Get(context.Background(), cfg.AIProvider)
	if err != nil {
		panic(fmt.Sprintf("unsupported AI_PROVIDER=%q: %v", cfg.AIProvider, err))
	}

	chatSvc := chat.NewService(chat.NewRepo(db), provider)

	return &Handler{
		DB:     db,
		Cfg:    cfg,
		Redis:  rds,
		Rabbit: rabbit,
		SMTPSetting: email.SMTPConfig{
			Host: cfg.SMTPHost,
			Port: cfg.SMTPPort,
			User: cfg.SMTPUser,
			Pass: cfg.SMTPPass,
			From: cfg.SMTPFrom,
		},
		ChatSvc: chatSvc,
	}
}
