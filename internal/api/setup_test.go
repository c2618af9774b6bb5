package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"persona-chat/backend/ai"
	"persona-chat/backend/internal/models"
	"persona-chat/backend/internal/service"
	"persona-chat/backend/pkg/cache"
	apperrors "persona-chat/backend/pkg/errors"
	"persona-chat/backend/pkg/health"
	"persona-chat/backend/pkg/jwt"
	"persona-chat/backend/pkg/logger"
	"persona-chat/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type stubProcessor struct {
	fail bool
}

func (p *stubProcessor) ProcessMessage(ctx context.Context, req ai.ProcessRequest) (*ai.AssistantMessage, error) {
	if p.fail {
		return nil, &ai.StatusError{StatusCode: http.StatusBadGateway, Body: "upstream down"}
	}
	return &ai.AssistantMessage{
		ID:      uuid.NewString(),
		Role:    "assistant",
		Content: "echo: " + req.UserMessage,
		ChatID:  req.ChatID,
	}, nil
}

func (p *stubProcessor) GenerateTitle(ctx context.Context, message string) string {
	return "Title: " + message
}

type testServer struct {
	engine    *gin.Engine
	db        *gorm.DB
	users     *service.UserService
	jwt       *jwt.Service
	processor *stubProcessor
	checker   *health.Checker
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:api_%s?mode=memory&cache=shared&_foreign_keys=on", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.AllModels()...))

	log := logger.Discard()
	jwtSvc := jwt.NewService("test-secret", time.Hour)
	users := service.NewUserService(db, jwtSvc)
	chats := service.NewChatService(db)
	proc := &stubProcessor{}
	store := cache.NewMemory(cache.Options{DefaultExpiration: time.Minute})
	t.Cleanup(store.Close)

	relay := service.NewRelay(chats, proc, service.NewTitleGenerator(proc, store, time.Minute), nil, service.RelayConfig{
		Models:  []string{"small", "large"},
		Timeout: 5 * time.Second,
	})
	passwords := service.NewPasswordService(db, users, service.LogMailer{Logger: log}, "http://app.test", time.Hour)
	checker := health.NewChecker(log, time.Minute)

	r := gin.New()
	r.Use(logger.Middleware(log), apperrors.ErrorHandler())
	requireAuth := middleware.JWTAuthMiddleware(jwtSvc, log)

	NewAuthHandler(users, jwtSvc, false, log).RegisterRoutes(r, requireAuth)
	NewPasswordHandler(passwords).RegisterRoutes(r)
	NewChatHandler(relay, chats, false).RegisterRoutes(r, requireAuth)
	NewContextHandler(service.NewContextService(db)).RegisterRoutes(r, requireAuth)
	NewHealthHandler(checker, fixedConnections(3), "test").RegisterRoutes(r)

	return &testServer{engine: r, db: db, users: users, jwt: jwtSvc, processor: proc, checker: checker}
}

type fixedConnections int

func (f fixedConnections) ActiveConnections() int { return int(f) }

// signUp registers a user and returns a bearer token for them
func (s *testServer) signUp(t *testing.T, email string) (string, *models.User) {
	t.Helper()
	user, token, err := s.users.Register(context.Background(), &models.CredentialsRequest{Email: email, Password: "password123"})
	require.NoError(t, err)
	return token, user
}

func (s *testServer) do(t *testing.T, method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(raw))
	} else {
		reader = strings.NewReader("")
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error.Code
}
