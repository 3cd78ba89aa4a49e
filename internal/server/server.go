package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"kaizen/internal/domain"
	"kaizen/internal/engine"
	"kaizen/internal/repo"
	"kaizen/internal/workflow"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"illegal_transition"`
	Message string         `json:"message" example:"invalid status transition from plan to act"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"from\":\"plan\",\"to\":\"act\"}"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Kaizen API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Kaizen API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerGoals(group, cfg.Engine)
	registerTransitions(group, cfg.Engine)
	registerAssignees(group, cfg.Engine)
	registerGoalTasks(group, cfg.Engine)
	registerHistory(group, cfg.Engine)
	registerUsers(group, cfg.Engine)
	registerGrants(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	if cfg.Engine.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", cfg.Engine.Metrics.Handler())
	}

	return router, nil
}

func bodyBytes(ctx context.Context) []byte {
	b, _ := ctx.Value(bodyBytesKey{}).([]byte)
	return b
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// handleError maps engine and workflow errors onto the wire envelope.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ite workflow.IllegalTransitionError
	if errors.As(err, &ite) {
		return newAPIError(http.StatusUnprocessableEntity, "illegal_transition", err.Error(),
			map[string]any{"from": ite.From, "to": ite.To})
	}
	var fe workflow.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), nil)
	}
	var pie engine.PhaseIncompleteError
	if errors.As(err, &pie) {
		tasks := make([]map[string]any, 0, len(pie.Tasks))
		for _, t := range pie.Tasks {
			tasks = append(tasks, map[string]any{
				"task_id":       t.TaskID,
				"title":         t.Title,
				"assignee_name": t.AssigneeName,
			})
		}
		return newAPIError(http.StatusUnprocessableEntity, "phase_incomplete", err.Error(),
			map[string]any{"phase": pie.Phase, "blocking_tasks": tasks})
	}
	if errors.Is(err, repo.ErrConflict) {
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	var ue engine.UnavailableError
	if errors.As(err, &ue) {
		return newAPIError(http.StatusServiceUnavailable, "unavailable", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "invalid") || strings.Contains(lowered, "required") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusServiceUnavailable:
		return "unavailable"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Kaizen API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerGoals(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-goal",
		Method:        http.MethodPost,
		Path:          "/goals",
		Summary:       "Create goal",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateGoalRequest `json:"body"`
	}) (*struct {
		Body GoalResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.Title == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "title is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		owner := strOrEmpty(input.Body.OwnerID)
		if owner == "" {
			owner = actorID
		}
		g, err := e.CreateGoal(ctx, engine.GoalCreateOptions{
			ID:          strOrEmpty(input.Body.ID),
			Title:       input.Body.Title,
			Description: strOrEmpty(input.Body.Description),
			Department:  strOrEmpty(input.Body.Department),
			OwnerID:     owner,
			StartDate:   strOrEmpty(input.Body.StartDate),
			TargetDate:  strOrEmpty(input.Body.TargetDate),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body GoalResponse `json:"body"`
		}{Body: goalResponse(g)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-goals",
		Method:      http.MethodGet,
		Path:        "/goals",
		Summary:     "List goals",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status     string `query:"status"`
		Department string `query:"department"`
		OwnerID    string `query:"owner_id"`
		Limit      int    `query:"limit"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body []GoalResponse `json:"body"`
	}, error) {
		if input.Status != "" && !workflow.ValidStatus(domain.Status(input.Status)) {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", fmt.Sprintf("invalid status %q", input.Status), nil)
		}
		items, err := e.Repo.ListGoals(ctx, repo.GoalFilters{
			Status:     domain.Status(input.Status),
			Department: input.Department,
			OwnerID:    input.OwnerID,
			Limit:      input.Limit,
			CursorID:   input.Cursor,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []GoalResponse `json:"body"`
		}{Body: mapGoals(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-goal",
		Method:      http.MethodGet,
		Path:        "/goals/{goal_id}",
		Summary:     "Get goal",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		GoalID string `path:"goal_id"`
	}) (*struct {
		Body GoalResponse `json:"body"`
	}, error) {
		snap, err := e.Repo.GetGoalSnapshot(ctx, input.GoalID)
		if err != nil {
			return nil, handleError(err)
		}
		out := goalResponse(snap.Goal)
		out.Assignees = snap.Assignees
		return &struct {
			Body GoalResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "comment-goal",
		Method:      http.MethodPost,
		Path:        "/goals/{goal_id}/comments",
		Summary:     "Add comment",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		GoalID string         `path:"goal_id"`
		Body   CommentRequest `json:"body"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.Comment == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "comment is required", nil)
		}
		if err := e.AddComment(ctx, input.GoalID, actorID, input.Body.Comment); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-goal-dates",
		Method:      http.MethodPatch,
		Path:        "/goals/{goal_id}/dates",
		Summary:     "Set start or target date",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		GoalID string          `path:"goal_id"`
		Body   SetDatesRequest `json:"body"`
	}) (*struct {
		Body GoalResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.StartDate == nil && input.Body.TargetDate == nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "start_date or target_date is required", nil)
		}
		g, err := e.SetDates(ctx, input.GoalID, actorID, input.Body.StartDate, input.Body.TargetDate)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body GoalResponse `json:"body"`
		}{Body: goalResponse(g)}, nil
	})
}

func registerTransitions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "transition-goal",
		Method:      http.MethodPost,
		Path:        "/goals/{goal_id}/transition",
		Summary:     "Request a status transition",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		GoalID string            `path:"goal_id"`
		Body   TransitionRequest `json:"body"`
	}) (*struct {
		Body GoalResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		target := domain.Status(input.Body.Status)
		if !workflow.ValidStatus(target) {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", fmt.Sprintf("invalid status %q", input.Body.Status), nil)
		}
		g, err := e.RequestTransition(ctx, engine.TransitionRequest{
			GoalID:        input.GoalID,
			Target:        target,
			ActorID:       actorID,
			Comment:       strOrEmpty(input.Body.Comment),
			NewAssigneeID: strOrEmpty(input.Body.NewAssigneeID),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body GoalResponse `json:"body"`
		}{Body: goalResponse(g)}, nil
	})
}

func registerAssignees(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "assign-goal",
		Method:      http.MethodPost,
		Path:        "/goals/{goal_id}/assignees",
		Summary:     "Assign users to a goal",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		GoalID string        `path:"goal_id"`
		Body   AssignRequest `json:"body"`
	}) (*struct {
		Body GoalResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if len(input.Body.UserIDs) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "user_ids is required", nil)
		}
		g, err := e.Assign(ctx, input.GoalID, input.Body.UserIDs, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body GoalResponse `json:"body"`
		}{Body: goalResponse(g)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-goal-assignees",
		Method:      http.MethodGet,
		Path:        "/goals/{goal_id}/assignees",
		Summary:     "List goal assignees",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		GoalID string `path:"goal_id"`
	}) (*struct {
		Body []domain.GoalAssignee `json:"body"`
	}, error) {
		if _, err := e.Repo.GetGoal(ctx, input.GoalID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListAssignees(ctx, input.GoalID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.GoalAssignee `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-assignment",
		Method:      http.MethodPost,
		Path:        "/goals/{goal_id}/assignees/{user_id}/complete",
		Summary:     "Mark an assignee's work complete",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		GoalID string                    `path:"goal_id"`
		UserID string                    `path:"user_id"`
		Body   CompleteAssignmentRequest `json:"body"`
	}) (*struct {
		Body domain.GoalAssignee `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.CompleteAssignment(ctx, input.GoalID, input.UserID, actorID, strOrEmpty(input.Body.Notes))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.GoalAssignee `json:"body"`
		}{Body: a}, nil
	})
}

func registerGoalTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-goal-task",
		Method:        http.MethodPost,
		Path:          "/goals/{goal_id}/tasks",
		Summary:       "Create a phase task",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		GoalID string                `path:"goal_id"`
		Body   CreateGoalTaskRequest `json:"body"`
	}) (*struct {
		Body domain.GoalTask `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.Title == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "title is required", nil)
		}
		t, err := e.CreateTask(ctx, engine.TaskCreateOptions{
			ID:         strOrEmpty(input.Body.ID),
			GoalID:     input.GoalID,
			Phase:      domain.Phase(input.Body.Phase),
			Title:      input.Body.Title,
			AssigneeID: strOrEmpty(input.Body.AssigneeID),
			ActorID:    actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.GoalTask `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-goal-tasks",
		Method:      http.MethodGet,
		Path:        "/goals/{goal_id}/tasks",
		Summary:     "List phase tasks",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		GoalID string `path:"goal_id"`
		Phase  string `query:"pdca_phase"`
	}) (*struct {
		Body []domain.GoalTask `json:"body"`
	}, error) {
		if _, err := e.Repo.GetGoal(ctx, input.GoalID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListTasks(ctx, input.GoalID, domain.Phase(input.Phase))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.GoalTask `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-goal-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{task_id}",
		Summary:     "Update a phase task's status",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		TaskID string                `path:"task_id"`
		Body   UpdateGoalTaskRequest `json:"body"`
	}) (*struct {
		Body domain.GoalTask `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.UpdateTaskStatus(ctx, input.TaskID, domain.TaskStatus(input.Body.Status), actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.GoalTask `json:"body"`
		}{Body: t}, nil
	})
}

func registerHistory(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "goal-history",
		Method:      http.MethodGet,
		Path:        "/goals/{goal_id}/history",
		Summary:     "Read the goal's workflow history",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		GoalID string `path:"goal_id"`
	}) (*struct {
		Body []HistoryEntryResponse `json:"body"`
	}, error) {
		if _, err := e.Repo.GetGoal(ctx, input.GoalID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListHistory(ctx, input.GoalID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []HistoryEntryResponse `json:"body"`
		}{Body: historyResponse(items)}, nil
	})
}

func registerUsers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "upsert-user",
		Method:        http.MethodPut,
		Path:          "/users",
		Summary:       "Create or update a user",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, input *struct {
		Body UpsertUserRequest `json:"body"`
	}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		if err := requireAdmin(ctx, e); err != nil {
			return nil, handleError(err)
		}
		if input.Body.ID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "id is required", nil)
		}
		u := domain.User{
			ID:         input.Body.ID,
			Name:       input.Body.Name,
			Role:       domain.Role(input.Body.Role),
			Department: input.Body.Department,
		}
		if err := e.Repo.UpsertUser(ctx, u); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List users",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.User `json:"body"`
	}, error) {
		items, err := e.Repo.ListUsers(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.User `json:"body"`
		}{Body: items}, nil
	})
}

func registerGrants(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "grant-department",
		Method:        http.MethodPost,
		Path:          "/grants",
		Summary:       "Grant department oversight",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, input *struct {
		Body GrantRequest `json:"body"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := requireAdmin(ctx, e); err != nil {
			return nil, handleError(err)
		}
		if input.Body.UserID == "" || input.Body.Department == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "user_id and department are required", nil)
		}
		if err := e.Repo.GrantDepartment(ctx, input.Body.UserID, input.Body.Department, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "revoke-department",
		Method:      http.MethodDelete,
		Path:        "/grants",
		Summary:     "Revoke department oversight",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, input *struct {
		UserID     string `query:"user_id"`
		Department string `query:"department"`
	}) (*struct{}, error) {
		if err := requireAdmin(ctx, e); err != nil {
			return nil, handleError(err)
		}
		if input.UserID == "" || input.Department == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "user_id and department are required", nil)
		}
		if err := e.Repo.RevokeDepartment(ctx, input.UserID, input.Department); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

// requireAdmin gates user and grant administration behind the admin role.
func requireAdmin(ctx context.Context, e engine.Engine) error {
	actorID, authErr := actorIDFromContext(ctx)
	if authErr != nil {
		return authErr
	}
	u, err := e.Repo.GetUser(ctx, actorID)
	if errors.Is(err, repo.ErrNotFound) {
		// Bootstrap: an empty user store accepts the first admin write.
		users, lerr := e.Repo.ListUsers(ctx)
		if lerr != nil {
			return lerr
		}
		if len(users) == 0 {
			return nil
		}
		return workflow.ForbiddenError{}
	}
	if err != nil {
		return err
	}
	if u.Role != domain.RoleAdmin {
		return workflow.ForbiddenError{}
	}
	return nil
}
