package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"persona-chat/backend/ai"
	"persona-chat/backend/internal/models"
	"persona-chat/backend/pkg/jwt"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", name)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	return db
}

func newTestUsers(t *testing.T, db *gorm.DB) *UserService {
	t.Helper()
	return NewUserService(db, jwt.NewService("test-secret", time.Hour))
}

func createUser(t *testing.T, users *UserService, email string) *models.User {
	t.Helper()
	user, _, err := users.Register(context.Background(), &models.CredentialsRequest{Email: email, Password: "password123"})
	require.NoError(t, err)
	return user
}

// fakeProcessor records calls and answers with reply
type fakeProcessor struct {
	mu         sync.Mutex
	requests   []ai.ProcessRequest
	titleCalls atomic.Int32
	title      string
	reply      func(req ai.ProcessRequest) (*ai.AssistantMessage, error)
}

func (f *fakeProcessor) ProcessMessage(ctx context.Context, req ai.ProcessRequest) (*ai.AssistantMessage, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.reply != nil {
		return f.reply(req)
	}
	return &ai.AssistantMessage{
		ID:      uuid.NewString(),
		Role:    "assistant",
		Content: "echo: " + req.UserMessage,
		ChatID:  req.ChatID,
	}, nil
}

func (f *fakeProcessor) GenerateTitle(ctx context.Context, message string) string {
	f.titleCalls.Add(1)
	if f.title != "" {
		return f.title
	}
	return ai.DefaultTitle
}

func (f *fakeProcessor) lastRequest() ai.ProcessRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}
