package http

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"passgate/internal/allocator"
	"passgate/internal/attendance"
	"passgate/internal/directory"
	"passgate/internal/identity"
	"passgate/internal/pass"
	"passgate/internal/payment"
	"passgate/pkg/testutil"
)

type testEnv struct {
	handler http.Handler
	tokens  *identity.Tokens
	events  *directory.MemoryStore
	passes  *pass.MemoryStore

	passID  uuid.UUID
	deptCSE int64
	deptECE int64
}

// newTestEnv wires the full router on memory stores: two departments, two
// events, one pass, one super admin account. Payment verification points at
// paymentURL (empty disables it).
func newTestEnv(t *testing.T, paymentURL string) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	events := directory.NewMemoryStore()
	cse := events.AddDepartment("CSE_SSN")
	ece := events.AddDepartment("ECE")
	require.NoError(t, events.UpsertEvent(ctx, directory.Event{
		ExternalID: 10, Name: "Algorithm Design", Department: &cse, Type: directory.TypeTechnical,
	}))
	require.NoError(t, events.UpsertEvent(ctx, directory.Event{
		ExternalID: 11, Name: "Circuit Rush", Department: &ece, Type: directory.TypeTechnical,
	}))

	passes := pass.NewMemoryStore(events)
	passID := uuid.New()
	passes.AddPass(pass.Pass{ID: passID, UserEmail: "p1@example.com", PaymentMethod: "cash", CreatedAt: time.Now()})

	admins := identity.NewMemoryStore()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, admins.Save(ctx, identity.Admin{
		Email:        "root@example.com",
		PasswordHash: string(hash),
		Role:         identity.RoleSuperAdmin,
	}))

	tokens := identity.NewTokens("test-key", time.Hour)
	identitySvc := identity.NewService(admins, tokens, "", logger)
	passSvc := pass.NewService(passes, nil, logger, 300)
	allocatorSvc := allocator.NewService(passes, nil, nil, logger)
	attendanceSvc := attendance.NewService(passes, nil, nil, logger, false)
	bridge := payment.NewBridge(passes, http.DefaultClient, paymentURL, payment.NewSigner("secret"), nil, nil, logger)

	srv := NewServer(identitySvc, tokens, passSvc, allocatorSvc, attendanceSvc, bridge, events, recounterStub{}, nil, logger)
	return &testEnv{
		handler: srv.Routes(),
		tokens:  tokens,
		events:  events,
		passes:  passes,
		passID:  passID,
		deptCSE: cse,
		deptECE: ece,
	}
}

// recounterStub satisfies the admin endpoint; the real recount is SQL-only.
type recounterStub struct{}

func (recounterStub) RecountRegistrations(context.Context) error { return nil }

func (e *testEnv) token(t *testing.T, actor identity.Actor) string {
	t.Helper()
	signed, err := e.tokens.Issue(actor)
	require.NoError(t, err)
	return signed
}

func (e *testEnv) authed(t *testing.T, req *http.Request, actor identity.Actor) *http.Request {
	t.Helper()
	req.Header.Set("Authorization", "Bearer "+e.token(t, actor))
	return req
}

func superAdmin() identity.Actor {
	return identity.Actor{Email: "root@example.com", Role: identity.RoleSuperAdmin}
}

func TestLoginEndpoint(t *testing.T) {
	env := newTestEnv(t, "")

	rr := testutil.DoRequest(env.handler, testutil.NewJSONRequest(t, http.MethodPost, "/auth/login", map[string]string{
		"email":    "root@example.com",
		"password": "correct-horse",
	}))
	testutil.AssertStatus(t, rr, http.StatusOK)

	body := testutil.UnmarshalResponse[map[string]string](t, rr)
	actor, err := env.tokens.Verify((*body)["token"])
	require.NoError(t, err)
	assert.Equal(t, "root@example.com", actor.Email)
}

func TestLoginEndpointBadCredentials(t *testing.T) {
	env := newTestEnv(t, "")
	rr := testutil.DoRequest(env.handler, testutil.NewJSONRequest(t, http.MethodPost, "/auth/login", map[string]string{
		"email":    "root@example.com",
		"password": "wrong",
	}))
	testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
}

func TestProtectedRoutesRejectMissingToken(t *testing.T) {
	env := newTestEnv(t, "")
	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/scan/" + env.passID.String()},
		{http.MethodGet, "/passes"},
		{http.MethodPost, "/passes/" + env.passID.String() + "/slots"},
	} {
		rr := testutil.DoRequest(env.handler, testutil.NewRequest(t, route.method, route.path))
		testutil.AssertStatus(t, rr, http.StatusUnauthorized)
	}
}

func TestScanEndpoint(t *testing.T) {
	env := newTestEnv(t, "")
	rr := testutil.DoRequest(env.handler, env.authed(t,
		testutil.NewRequest(t, http.MethodGet, "/scan/"+env.passID.String()), superAdmin()))
	testutil.AssertStatus(t, rr, http.StatusOK)

	result := testutil.UnmarshalResponse[pass.ScanResult](t, rr)
	assert.Equal(t, env.passID, result.Pass.ID)
	assert.Empty(t, result.Slots)
}

func TestScanEndpointBadID(t *testing.T) {
	env := newTestEnv(t, "")
	rr := testutil.DoRequest(env.handler, env.authed(t,
		testutil.NewRequest(t, http.MethodGet, "/scan/not-a-uuid"), superAdmin()))
	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "bad_request")
}

func TestAssignAndDeleteSlotEndpoints(t *testing.T) {
	env := newTestEnv(t, "")
	base := "/passes/" + env.passID.String()

	rr := testutil.DoRequest(env.handler, env.authed(t,
		testutil.NewJSONRequest(t, http.MethodPost, base+"/slots", map[string]any{
			"slot_no": 1, "event_id": 10,
		}), superAdmin()))
	testutil.AssertStatus(t, rr, http.StatusCreated)
	slot := testutil.UnmarshalResponse[pass.Slot](t, rr)
	assert.Equal(t, 1, slot.SlotNo)

	// Same slot again conflicts.
	rr = testutil.DoRequest(env.handler, env.authed(t,
		testutil.NewJSONRequest(t, http.MethodPost, base+"/slots", map[string]any{
			"slot_no": 1, "event_id": 11,
		}), superAdmin()))
	testutil.AssertStatusAndError(t, rr, http.StatusConflict, "conflict")

	rr = testutil.DoRequest(env.handler, env.authed(t,
		testutil.NewRequest(t, http.MethodDelete, base+"/slots/1"), superAdmin()))
	testutil.AssertStatus(t, rr, http.StatusOK)
}

func TestAssignSlotForbiddenForOtherDepartment(t *testing.T) {
	env := newTestEnv(t, "")
	volunteer := identity.Actor{Email: "vol@example.com", Role: identity.RoleVolunteer, Department: &env.deptECE}

	rr := testutil.DoRequest(env.handler, env.authed(t,
		testutil.NewJSONRequest(t, http.MethodPost, "/passes/"+env.passID.String()+"/slots", map[string]any{
			"slot_no": 1, "event_id": 10,
		}), volunteer))
	testutil.AssertStatusAndError(t, rr, http.StatusForbidden, "forbidden")
}

func TestAttendanceEndpoint(t *testing.T) {
	env := newTestEnv(t, "")
	base := "/passes/" + env.passID.String()

	rr := testutil.DoRequest(env.handler, env.authed(t,
		testutil.NewJSONRequest(t, http.MethodPost, base+"/slots", map[string]any{
			"slot_no": 1, "event_id": 10,
		}), superAdmin()))
	testutil.AssertStatus(t, rr, http.StatusCreated)

	rr = testutil.DoRequest(env.handler, env.authed(t,
		testutil.NewJSONRequest(t, http.MethodPost, base+"/attendance", map[string]any{
			"event_id": 10, "attended": true,
		}), superAdmin()))
	testutil.AssertStatus(t, rr, http.StatusOK)

	// Attended slot can no longer be deleted.
	rr = testutil.DoRequest(env.handler, env.authed(t,
		testutil.NewRequest(t, http.MethodDelete, base+"/slots/1"), superAdmin()))
	testutil.AssertStatusAndError(t, rr, http.StatusConflict, "conflict")
}

func TestCreatePassEndpoint(t *testing.T) {
	env := newTestEnv(t, "")
	rr := testutil.DoRequest(env.handler, env.authed(t,
		testutil.NewJSONRequest(t, http.MethodPost, "/passes", map[string]string{
			"user_email": "visitor@example.com",
		}), superAdmin()))
	testutil.AssertStatus(t, rr, http.StatusCreated)

	created := testutil.UnmarshalResponse[pass.Pass](t, rr)
	assert.Equal(t, "visitor@example.com", created.UserEmail)
	assert.False(t, created.Verified)
}

func TestListPassesEndpoint(t *testing.T) {
	env := newTestEnv(t, "")
	rr := testutil.DoRequest(env.handler, env.authed(t,
		testutil.NewRequest(t, http.MethodGet, "/passes?payment_method=cash"), superAdmin()))
	testutil.AssertStatus(t, rr, http.StatusOK)

	body := testutil.UnmarshalResponse[map[string][]pass.Pass](t, rr)
	assert.Len(t, (*body)["passes"], 1)

	rr = testutil.DoRequest(env.handler, env.authed(t,
		testutil.NewRequest(t, http.MethodGet, "/passes?verified=maybe"), superAdmin()))
	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "bad_request")
}

func TestMarkCashPaidEndpoint(t *testing.T) {
	external := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer external.Close()

	env := newTestEnv(t, external.URL)
	rr := testutil.DoRequest(env.handler, env.authed(t,
		testutil.NewRequest(t, http.MethodPost, "/passes/"+env.passID.String()+"/mark-cash-paid"), superAdmin()))
	testutil.AssertStatus(t, rr, http.StatusOK)
	testutil.AssertJSONContains(t, rr, "ok", true)

	// Second call is an idempotent success without an operation id.
	rr = testutil.DoRequest(env.handler, env.authed(t,
		testutil.NewRequest(t, http.MethodPost, "/passes/"+env.passID.String()+"/mark-cash-paid"), superAdmin()))
	testutil.AssertStatus(t, rr, http.StatusOK)
	body := testutil.UnmarshalResponse[map[string]any](t, rr)
	_, hasOp := (*body)["operation_id"]
	assert.False(t, hasOp)
}

func TestMarkCashPaidUpstreamDown(t *testing.T) {
	external := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer external.Close()

	env := newTestEnv(t, external.URL)
	rr := testutil.DoRequest(env.handler, env.authed(t,
		testutil.NewRequest(t, http.MethodPost, "/passes/"+env.passID.String()+"/mark-cash-paid"), superAdmin()))
	testutil.AssertStatusAndError(t, rr, http.StatusBadGateway, "upstream_error")
}

func TestEventsEndpointScoping(t *testing.T) {
	env := newTestEnv(t, "")

	rr := testutil.DoRequest(env.handler, env.authed(t,
		testutil.NewRequest(t, http.MethodGet, "/events"), superAdmin()))
	testutil.AssertStatus(t, rr, http.StatusOK)
	all := testutil.UnmarshalResponse[map[string][]map[string]any](t, rr)
	assert.Len(t, (*all)["events"], 2)

	scoped := identity.Actor{Email: "ece@example.com", Role: identity.RoleVolunteer, Department: &env.deptECE}
	rr = testutil.DoRequest(env.handler, env.authed(t,
		testutil.NewRequest(t, http.MethodGet, "/events"), scoped))
	testutil.AssertStatus(t, rr, http.StatusOK)
	mine := testutil.UnmarshalResponse[map[string][]map[string]any](t, rr)
	require.Len(t, (*mine)["events"], 1)
	assert.Equal(t, "Circuit Rush", (*mine)["events"][0]["name"])
}

func TestReconcileRequiresSuperAdmin(t *testing.T) {
	env := newTestEnv(t, "")

	volunteer := identity.Actor{Email: "vol@example.com", Role: identity.RoleVolunteer}
	rr := testutil.DoRequest(env.handler, env.authed(t,
		testutil.NewRequest(t, http.MethodPost, "/admin/reconcile-registrations"), volunteer))
	testutil.AssertStatus(t, rr, http.StatusForbidden)

	rr = testutil.DoRequest(env.handler, env.authed(t,
		testutil.NewRequest(t, http.MethodPost, "/admin/reconcile-registrations"), superAdmin()))
	testutil.AssertStatus(t, rr, http.StatusOK)
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, "")
	rr := testutil.DoRequest(env.handler, testutil.NewRequest(t, http.MethodGet, "/health"))
	testutil.AssertStatus(t, rr, http.StatusOK)
	testutil.AssertJSONContains(t, rr, "status", "ok")
}
