package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/noah-isme/gema-judge/internal/config"
	"github.com/noah-isme/gema-judge/internal/execution"
	"github.com/noah-isme/gema-judge/internal/handler"
	"github.com/noah-isme/gema-judge/internal/language"
	"github.com/noah-isme/gema-judge/internal/models"
	"github.com/noah-isme/gema-judge/internal/repository"
	"github.com/noah-isme/gema-judge/internal/router"
	"github.com/noah-isme/gema-judge/internal/service"
)

// adderRunner prints the sum of the integers on stdin. Sources containing
// "while True" never finish.
type adderRunner struct{}

func (adderRunner) Name() string                  { return "adder" }
func (adderRunner) WorkDir(hostDir string) string { return hostDir }
func (adderRunner) Probe(context.Context, language.Profile) error {
	return nil
}

func (adderRunner) Run(_ context.Context, cmd execution.Command) (execution.RunOutput, error) {
	entries, err := os.ReadDir(cmd.HostDir)
	if err != nil {
		return execution.RunOutput{}, err
	}
	for _, entry := range entries {
		source, err := os.ReadFile(filepath.Join(cmd.HostDir, entry.Name()))
		if err == nil && strings.Contains(string(source), "while True") {
			return execution.RunOutput{TimedOut: true, ExitCode: -1, Duration: cmd.Timeout}, nil
		}
	}

	total := 0
	for _, field := range strings.Fields(cmd.Stdin) {
		n, err := strconv.Atoi(field)
		if err != nil {
			return execution.RunOutput{Stderr: "ValueError: " + field, ExitCode: 1}, nil
		}
		total += n
	}
	return execution.RunOutput{Stdout: fmt.Sprintf("%d\n", total), Duration: time.Millisecond}, nil
}

type testApp struct {
	app *fiber.App
	db  *gorm.DB
}

func newTestApp(t *testing.T) testApp {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Problem{}, &models.TestCase{},
		&models.JudgeSubmission{}, &models.JudgeTestResult{},
		&models.Task{}, &models.TaskSubmission{},
		&models.Notification{}, &models.ActivityLog{},
	))

	engine, err := execution.NewEngine(execution.Config{
		Registry: language.NewRegistry(
			language.Profile{Name: "python", Extension: ".py", DefaultBaseName: "main", RunCommand: "python3 {source}", Timeout: time.Second},
		),
		Runner:        adderRunner{},
		Pool:          execution.NewPool(2, 2, time.Second),
		WorkspaceRoot: t.TempDir(),
		Logger:        zerolog.Nop(),
	})
	require.NoError(t, err)

	validate := validator.New(validator.WithRequiredStructEnabled())
	log := zerolog.New(io.Discard)

	taskRepo := repository.NewTaskRepository(db)
	notifications := service.NewNotificationService(repository.NewNotificationRepository(db), nil, "", nil, validate, log)
	judge := service.NewJudgeService(repository.NewProblemRepository(db), repository.NewJudgeSubmissionRepository(db), engine, validate, log)
	tasks := service.NewTaskSubmissionService(taskRepo, validate, log)
	autoSubmit := service.NewAutoSubmitService(taskRepo, notifications, nil, service.AutoSubmitConfig{}, log)
	activity := service.NewActivityService(repository.NewActivityLogRepository(db), log)

	app := fiber.New()
	router.Register(app, config.Config{AppName: "Test", JWTSecret: "secret", RunRateLimit: 100}, router.Dependencies{
		JudgeHandler:          handler.NewJudgeHandler(judge, activity, validate, log),
		TaskSubmissionHandler: handler.NewTaskSubmissionHandler(tasks, validate, log),
		AutoSubmitHandler:     handler.NewAutoSubmitHandler(autoSubmit, activity, log),
		NotificationHandler:   handler.NewNotificationHandler(notifications, log),
		ActivityHandler:       handler.NewActivityHandler(activity, log),
		JWTMiddleware: func(c *fiber.Ctx) error {
			if id, err := strconv.ParseUint(c.Get("X-Test-User"), 10, 64); err == nil {
				c.Locals("user_id", uint(id))
			}
			if role := c.Get("X-Test-Role"); role != "" {
				c.Locals("user_role", role)
			}
			return c.Next()
		},
	})

	return testApp{app: app, db: db}
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    json.RawMessage `json:"meta"`
	Details json.RawMessage `json:"details"`

	raw []byte
}

func (a testApp) do(t *testing.T, method, path string, userID uint, role string, body interface{}) (int, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != 0 {
		req.Header.Set("X-Test-User", strconv.FormatUint(uint64(userID), 10))
	}
	if role != "" {
		req.Header.Set("X-Test-Role", role)
	}

	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var payload envelope
	require.NoError(t, json.Unmarshal(raw, &payload))
	payload.raw = raw
	return resp.StatusCode, payload
}

func decodeData(t *testing.T, payload envelope, target interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(payload.Data, target))
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
