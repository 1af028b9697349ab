package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence/file"
	"github.com/dukex/stepflow/pkg/runner"
	"github.com/dukex/stepflow/pkg/web"
)

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()

	p, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	workflowRunner := runner.NewWorkflowRunner(p, nil, nil, logger)
	handlers := web.NewAPIHandlers(p, workflowRunner, validator.New(validator.WithRequiredStructEnabled()))

	app := fiber.New()

	d := app.Group("/definitions")
	d.Get("/", handlers.GetDefinitions)
	d.Post("/", handlers.CreateDefinition)
	d.Get("/:id", handlers.GetDefinition)
	d.Delete("/:id", handlers.DeleteDefinition)
	d.Post("/:id/activate", handlers.ActivateDefinition)

	i := app.Group("/instances")
	i.Post("/", handlers.CreateInstance)
	i.Get("/:id", handlers.GetInstance)
	i.Post("/:id/outcome", handlers.SubmitOutcome)
	i.Post("/:id/cancel", handlers.CancelInstance)
	i.Get("/:id/history", handlers.GetHistory)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")

	return req
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var out T

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))

	return out
}

func validDefinitionRequest() web.CreateDefinitionRequest {
	return web.CreateDefinitionRequest{
		Name:         "Purchase approval",
		Code:         "purchase_approval",
		TriggerEvent: models.TriggerEventManual,
		Owner:        "procurement",
		Steps: []*models.WorkflowStep{
			{
				Name:       "Intake",
				Code:       "intake",
				StepNumber: 1,
				StepType:   models.StepTypeTask,
				Triggers: []*models.Trigger{
					{
						TriggerID: "t1",
						Event:     models.StepEventComplete,
						IsActive:  true,
						Actions: []*models.Action{
							{
								ActionID: "a1",
								Type:     models.ActionTypeSendEmail,
								Config: map[string]any{
									"to":      "{{assignee.email}}",
									"subject": "Intake done",
									"body":    "Next up: review",
								},
							},
						},
					},
				},
			},
			{Name: "Review", Code: "review", StepNumber: 2, StepType: models.StepTypeApproval},
		},
	}
}

func createAndActivate(t *testing.T, app *fiber.App) *models.WorkflowDefinition {
	t.Helper()

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/definitions/", validDefinitionRequest()))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	definition := decode[*models.WorkflowDefinition](t, resp)

	resp, err = app.Test(jsonRequest(t, http.MethodPost, "/definitions/"+definition.ID+"/activate", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	return decode[*models.WorkflowDefinition](t, resp)
}

func TestCreateDefinition(t *testing.T) {
	app := setupTestApp(t)

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/definitions/", validDefinitionRequest()))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	definition := decode[*models.WorkflowDefinition](t, resp)
	assert.NotEmpty(t, definition.ID)
	assert.Equal(t, models.DefinitionStatusDraft, definition.Status)
	assert.Len(t, definition.Steps, 2)
}

func TestCreateDefinitionRejectsDanglingTransition(t *testing.T) {
	app := setupTestApp(t)

	req := validDefinitionRequest()
	req.Steps[0].NextStepOnComplete = "nowhere"

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/definitions/", req))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	problem := decode[map[string]any](t, resp)
	assert.Equal(t, "invalid_definition", problem["type"])

	errorsList, ok := problem["errors"].([]any)
	require.True(t, ok)
	require.Len(t, errorsList, 1)

	first, ok := errorsList[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "intake", first["stepCode"])
}

func TestCreateDefinitionRejectsBadActionConfig(t *testing.T) {
	app := setupTestApp(t)

	req := validDefinitionRequest()
	req.Steps[0].Triggers[0].Actions[0].Config = map[string]any{"subject": "no recipient"}

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/definitions/", req))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestInstanceLifecycle(t *testing.T) {
	app := setupTestApp(t)
	definition := createAndActivate(t, app)

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/instances/", web.StartInstanceRequest{
		WorkflowDefinitionID: definition.ID,
		Context:              map[string]any{"amount": 42},
	}))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	instance := decode[*models.WorkflowInstance](t, resp)
	assert.Equal(t, "intake", instance.CurrentStepCode)

	resp, err = app.Test(jsonRequest(t, http.MethodPost, "/instances/"+instance.ID+"/outcome", web.SubmitOutcomeRequest{
		Outcome: models.OutcomeComplete,
	}))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	advanced := decode[*models.WorkflowInstance](t, resp)
	assert.Equal(t, "review", advanced.CurrentStepCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/instances/"+instance.ID+"/history", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	history := decode[[]models.HistoryEntry](t, resp)
	assert.Len(t, history, 3)
}

func TestStartInstanceRequiresActiveDefinition(t *testing.T) {
	app := setupTestApp(t)

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/definitions/", validDefinitionRequest()))
	require.NoError(t, err)

	definition := decode[*models.WorkflowDefinition](t, resp)

	resp, err = app.Test(jsonRequest(t, http.MethodPost, "/instances/", web.StartInstanceRequest{
		WorkflowDefinitionID: definition.ID,
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOutcomeOnCancelledInstanceConflicts(t *testing.T) {
	app := setupTestApp(t)
	definition := createAndActivate(t, app)

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/instances/", web.StartInstanceRequest{
		WorkflowDefinitionID: definition.ID,
	}))
	require.NoError(t, err)

	instance := decode[*models.WorkflowInstance](t, resp)

	resp, err = app.Test(jsonRequest(t, http.MethodPost, "/instances/"+instance.ID+"/cancel", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(jsonRequest(t, http.MethodPost, "/instances/"+instance.ID+"/outcome", web.SubmitOutcomeRequest{
		Outcome: models.OutcomeComplete,
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestGetDefinitionNotFound(t *testing.T) {
	app := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/definitions/ghost", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthCheck(t *testing.T) {
	app := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
