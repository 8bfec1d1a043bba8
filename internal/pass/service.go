package pass

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/google/uuid"

	"passgate/internal/audit"
	"passgate/internal/identity"
	dErrors "passgate/pkg/domain-errors"
	"passgate/pkg/platform/sentinel"
)

// ScanResult is a pass with its visible slot bindings. Slots for events
// outside the caller's department are filtered out, not errored on: a scan
// must always answer for a valid pass.
type ScanResult struct {
	Pass  *Pass        `json:"pass"`
	Slots []SlotDetail `json:"slots"`
}

// Service is the pass registry.
type Service struct {
	passes    Store
	trail     *audit.Publisher
	logger    *slog.Logger
	passPrice int64
	now       func() time.Time
}

func NewService(passes Store, trail *audit.Publisher, logger *slog.Logger, passPrice int64) *Service {
	return &Service{
		passes:    passes,
		trail:     trail,
		logger:    logger,
		passPrice: passPrice,
		now:       time.Now,
	}
}

// Scan loads the pass and its slots for display at a desk. Department-scoped
// callers see only the slots they are entitled to act on.
func (s *Service) Scan(ctx context.Context, actor identity.Actor, passID uuid.UUID) (*ScanResult, error) {
	p, err := s.passes.PassByID(ctx, passID)
	if err != nil {
		return nil, s.translate(ctx, err, "load pass")
	}
	details, err := s.passes.SlotsDetailed(ctx, passID)
	if err != nil {
		return nil, s.translate(ctx, err, "load slots")
	}

	visible := make([]SlotDetail, 0, len(details))
	for _, d := range details {
		if identity.CanSee(actor, d.Department) {
			visible = append(visible, d)
		}
	}
	return &ScanResult{Pass: p, Slots: visible}, nil
}

// Get returns the bare pass record.
func (s *Service) Get(ctx context.Context, passID uuid.UUID) (*Pass, error) {
	p, err := s.passes.PassByID(ctx, passID)
	if err != nil {
		return nil, s.translate(ctx, err, "load pass")
	}
	return p, nil
}

// List returns passes matching the filter.
func (s *Service) List(ctx context.Context, filter Filter) ([]Pass, error) {
	passes, err := s.passes.List(ctx, filter)
	if err != nil {
		return nil, s.translate(ctx, err, "list passes")
	}
	return passes, nil
}

// CreateCashPass issues a new unverified pass backed by a cash receipt. The
// receipt and pass land in one transaction; verification happens later
// through the payment bridge.
func (s *Service) CreateCashPass(ctx context.Context, actor identity.Actor, userEmail string) (*Pass, error) {
	userEmail = strings.ToLower(strings.TrimSpace(userEmail))
	if !govalidator.IsEmail(userEmail) {
		return nil, dErrors.New(dErrors.CodeBadRequest, "user_email is not a valid email address")
	}

	now := s.now().UTC()
	receipt := &Receipt{
		PaymentID: uuid.New(),
		Method:    "cash",
		Amount:    s.passPrice,
		PaidOn:    now,
	}
	p := &Pass{
		ID:            uuid.New(),
		UserEmail:     userEmail,
		PaymentID:     receipt.PaymentID,
		PaymentMethod: "cash",
		Verified:      false,
		Issued:        false,
		CreatedAt:     now,
	}
	if err := s.passes.CreateWithReceipt(ctx, p, receipt); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "pass already exists")
		}
		s.logger.ErrorContext(ctx, "pass creation failed", "user_email", userEmail, "error", err)
		return nil, dErrors.Wrap(dErrors.CodeInternal, "create pass", err)
	}

	s.trail.Emit(ctx, audit.Event{
		Actor:  actor.Email,
		Action: audit.ActionPassCreated,
		PassID: p.ID.String(),
		Detail: "cash pass for " + userEmail,
	})
	return p, nil
}

func (s *Service) translate(ctx context.Context, err error, msg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "pass not found")
	}
	s.logger.ErrorContext(ctx, msg, "error", err)
	return dErrors.Wrap(dErrors.CodeInternal, msg, err)
}
