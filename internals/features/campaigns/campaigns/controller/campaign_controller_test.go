package controller

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"kvtogether_backend/internals/constants"
	"kvtogether_backend/internals/features/campaigns/campaigns/model"
	"kvtogether_backend/internals/features/campaigns/campaigns/service"
	"kvtogether_backend/internals/features/campaigns/lifecycle"
	walletsvc "kvtogether_backend/internals/features/wallets/service"
	helper "kvtogether_backend/internals/helpers"
	"kvtogether_backend/internals/testinfra"
)

type envelope struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	ErrorCode string          `json:"error_code"`
	Data      json.RawMessage `json:"data"`
}

func newTestApp(t *testing.T, userID uuid.UUID, role string) (*fiber.App, *service.CampaignService) {
	t.Helper()
	db := testinfra.NewSQLiteDB(t)
	rec := service.NewReconciler(db, 5, nil)
	svc := service.NewCampaignService(db, rec, walletsvc.NewWalletService(db), nil)
	ctl := NewCampaignController(svc)

	app := fiber.New(fiber.Config{JSONEncoder: sonic.Marshal, JSONDecoder: sonic.Unmarshal})
	auth := func(c *fiber.Ctx) error {
		c.Locals(helper.LocUserID, userID.String())
		c.Locals(helper.LocUserRole, role)
		return c.Next()
	}
	app.Get("/campaigns/:id", ctl.PublicGet)
	app.Get("/campaigns/:id/funding", ctl.Funding)
	app.Post("/u/campaigns", auth, ctl.Create)
	app.Patch("/u/campaigns/:id", auth, ctl.Update)
	app.Post("/u/campaigns/:id/submit", auth, ctl.Submit)
	app.Post("/a/campaigns/:id/approve", auth, ctl.Approve)
	app.Post("/a/campaigns/:id/reject", auth, ctl.Reject)
	return app, svc
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, envelope) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	var env envelope
	if err := sonic.Unmarshal(raw, &env); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return resp.StatusCode, env
}

func TestCreateSubmitApproveFlow(t *testing.T) {
	organizer := uuid.New()
	app, _ := newTestApp(t, organizer, constants.RoleAdmin)

	end := time.Now().Add(72 * time.Hour).UTC().Format(time.RFC3339)
	status, env := do(t, app, http.MethodPost, "/u/campaigns",
		`{"title":"Roof repair","target_amount":1500000,"end_date":"`+end+`"}`)
	if status != http.StatusCreated {
		t.Fatalf("create status = %d (%s)", status, env.Message)
	}
	var created struct {
		ID     uuid.UUID       `json:"id"`
		Status lifecycle.State `json:"status"`
	}
	if err := sonic.Unmarshal(env.Data, &created); err != nil {
		t.Fatal(err)
	}
	if created.Status != lifecycle.Draft {
		t.Errorf("status = %s, want draft", created.Status)
	}

	if status, _ := do(t, app, http.MethodGet, "/campaigns/"+created.ID.String(), ""); status != http.StatusNotFound {
		t.Errorf("draft visible publicly: status %d", status)
	}
	if status, env := do(t, app, http.MethodPost, "/a/campaigns/"+created.ID.String()+"/approve", ""); status != http.StatusConflict {
		t.Errorf("approve draft: status %d (%s), want 409", status, env.Message)
	}
	if status, _ := do(t, app, http.MethodPost, "/u/campaigns/"+created.ID.String()+"/submit", ""); status != http.StatusOK {
		t.Errorf("submit: status %d", status)
	}
	if status, _ := do(t, app, http.MethodPost, "/a/campaigns/"+created.ID.String()+"/approve", ""); status != http.StatusOK {
		t.Errorf("approve: status %d", status)
	}
	if status, _ := do(t, app, http.MethodGet, "/campaigns/"+created.ID.String(), ""); status != http.StatusOK {
		t.Errorf("active campaign not public: status %d", status)
	}
}

func TestCreateValidation(t *testing.T) {
	app, _ := newTestApp(t, uuid.New(), constants.RoleUser)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"missing title", `{"target_amount":100000}`, http.StatusUnprocessableEntity},
		{"zero target", `{"title":"Roof","target_amount":0}`, http.StatusUnprocessableEntity},
		{"past end date", `{"title":"Roof","target_amount":100000,"end_date":"2001-01-01T00:00:00Z"}`, http.StatusUnprocessableEntity},
		{"largest target", `{"title":"Roof","target_amount":87841638446235960}`, http.StatusCreated},
		{"target above maximum", `{"title":"Roof","target_amount":87841638446235961}`, http.StatusUnprocessableEntity},
		{"target overflowing ceiling", `{"title":"Roof","target_amount":100000000000000000}`, http.StatusUnprocessableEntity},
		{"broken json", `{"title":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := do(t, app, http.MethodPost, "/u/campaigns", tt.body)
			if status != tt.want {
				t.Errorf("status = %d (%s), want %d", status, env.Message, tt.want)
			}
		})
	}
}

func TestFundingQuoteEndpoint(t *testing.T) {
	app, svc := newTestApp(t, uuid.New(), constants.RoleUser)
	c := model.Campaign{
		OrganizerID:   uuid.New(),
		Title:         "Commune clinic roof",
		TargetAmount:  1_000_000,
		CurrentAmount: 980_000,
		Status:        lifecycle.Active,
	}
	if err := svc.DB.Create(&c).Error; err != nil {
		t.Fatal(err)
	}

	status, env := do(t, app, http.MethodGet, "/campaigns/"+c.ID.String()+"/funding?amount=70000", "")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	var sum service.FundingSummary
	if err := sonic.Unmarshal(env.Data, &sum); err != nil {
		t.Fatal(err)
	}
	if sum.MaxAcceptable != 20_000 || sum.Quote == nil || sum.Quote.Accepted != 20_000 || sum.Quote.Excess != 50_000 {
		t.Errorf("summary = %+v quote = %+v", sum, sum.Quote)
	}

	if status, _ := do(t, app, http.MethodGet, "/campaigns/not-a-uuid/funding", ""); status != http.StatusBadRequest {
		t.Errorf("bad id: status %d, want 400", status)
	}
	if status, _ := do(t, app, http.MethodGet, "/campaigns/"+uuid.NewString()+"/funding", ""); status != http.StatusNotFound {
		t.Errorf("missing campaign: status %d, want 404", status)
	}
}

func TestUpdateValidation(t *testing.T) {
	organizer := uuid.New()
	app, _ := newTestApp(t, organizer, constants.RoleUser)

	status, env := do(t, app, http.MethodPost, "/u/campaigns", `{"title":"Roof repair","target_amount":1500000}`)
	if status != http.StatusCreated {
		t.Fatalf("create status = %d (%s)", status, env.Message)
	}
	var created struct {
		ID uuid.UUID `json:"id"`
	}
	if err := sonic.Unmarshal(env.Data, &created); err != nil {
		t.Fatal(err)
	}
	path := "/u/campaigns/" + created.ID.String()
	future := time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"past end date", `{"end_date":"2001-01-01T00:00:00Z"}`, http.StatusUnprocessableEntity},
		{"target above maximum", `{"target_amount":100000000000000000}`, http.StatusUnprocessableEntity},
		{"future end date", `{"end_date":"` + future + `"}`, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := do(t, app, http.MethodPatch, path, tt.body)
			if status != tt.want {
				t.Errorf("status = %d (%s), want %d", status, env.Message, tt.want)
			}
		})
	}
}
