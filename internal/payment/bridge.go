// Package payment reconciles a pass's cash-verified flag with the external
// payment authority. The external service owns the business decision; local
// convergence is an optimistic single-column compare-and-swap, not a lock,
// since the mutation is idempotent by construction.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"passgate/internal/audit"
	"passgate/internal/identity"
	"passgate/internal/pass"
	"passgate/internal/platform/metrics"
	dErrors "passgate/pkg/domain-errors"
	"passgate/pkg/platform/sentinel"
)

// verifyRequest is the outbound call body. The operation id is fresh per
// attempt and lets the external side deduplicate retried calls.
type verifyRequest struct {
	PassID      string `json:"pass_id"`
	MarkedBy    string `json:"marked_by"`
	Timestamp   string `json:"timestamp"`
	OperationID string `json:"operation_id"`
}

// Result reports a verification outcome.
type Result struct {
	OperationID string `json:"operation_id,omitempty"`
	// AlreadyVerified means no external call was made (or another caller
	// won the final write); the pass is verified either way.
	AlreadyVerified bool `json:"-"`
}

// Bridge performs the idempotent verification protocol.
type Bridge struct {
	passes  pass.Store
	client  *http.Client
	url     string
	signer  *Signer
	trail   *audit.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

func NewBridge(passes pass.Store, client *http.Client, url string, signer *Signer, trail *audit.Publisher, m *metrics.Metrics, logger *slog.Logger) *Bridge {
	return &Bridge{
		passes:  passes,
		client:  client,
		url:     url,
		signer:  signer,
		trail:   trail,
		metrics: m,
		logger:  logger,
		tracer:  otel.Tracer("passgate/payment"),
		now:     time.Now,
	}
}

// VerifyCash converges the pass's verified flag with the external authority.
// Safe under retries and concurrent callers: at most one external call takes
// effect and every caller that reaches a verified pass observes success.
func (b *Bridge) VerifyCash(ctx context.Context, actor identity.Actor, passID uuid.UUID) (*Result, error) {
	p, err := b.passes.PassByID(ctx, passID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "pass not found")
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "load pass", err)
	}

	// Fast local idempotency check: nothing to do, no external call.
	if p.Verified {
		b.metrics.RecordCashVerification("already_verified")
		return &Result{AlreadyVerified: true}, nil
	}

	operationID := uuid.NewString()
	if err := b.callVerificationService(ctx, p, actor, operationID); err != nil {
		return nil, err
	}

	// Conditional write: only the caller that flips false -> true reports
	// the transition; losing the race is still success.
	swapped, err := b.passes.MarkVerified(ctx, passID)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "mark verified", err)
	}
	if !swapped {
		b.metrics.RecordCashVerification("concurrent")
		return &Result{OperationID: operationID, AlreadyVerified: true}, nil
	}

	b.metrics.RecordCashVerification("verified")
	b.trail.Emit(ctx, audit.Event{
		Actor:  actor.Email,
		Action: audit.ActionCashVerified,
		PassID: passID.String(),
		Detail: "operation " + operationID,
	})
	return &Result{OperationID: operationID}, nil
}

func (b *Bridge) callVerificationService(ctx context.Context, p *pass.Pass, actor identity.Actor, operationID string) error {
	if b.url == "" {
		b.metrics.RecordCashVerification("upstream_error")
		return dErrors.New(dErrors.CodeUpstream, "payment verification service not configured")
	}

	ctx, span := b.tracer.Start(ctx, "payment.verify",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("pass.id", p.ID.String()),
			attribute.String("operation.id", operationID),
		),
	)
	defer span.End()

	body, err := json.Marshal(verifyRequest{
		PassID:      p.ID.String(),
		MarkedBy:    actor.Email,
		Timestamp:   b.now().UTC().Format(time.RFC3339),
		OperationID: operationID,
	})
	if err != nil {
		return dErrors.Wrap(dErrors.CodeInternal, "encode verification request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return dErrors.Wrap(dErrors.CodeInternal, "build verification request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	timestamp, signature := b.signer.Sign(b.now())
	req.Header.Set("X-Timestamp", timestamp)
	req.Header.Set("X-Signature", signature)

	resp, err := b.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "verification call failed")
		b.metrics.RecordCashVerification("upstream_error")
		b.logger.ErrorContext(ctx, "payment verification call failed",
			"pass_id", p.ID,
			"operation_id", operationID,
			"error", err,
		)
		return dErrors.New(dErrors.CodeUpstream, "payment verification service unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		span.SetStatus(codes.Error, fmt.Sprintf("status %d", resp.StatusCode))
		b.metrics.RecordCashVerification("upstream_error")
		b.logger.ErrorContext(ctx, "payment verification rejected",
			"pass_id", p.ID,
			"operation_id", operationID,
			"status", resp.StatusCode,
		)
		return dErrors.New(dErrors.CodeUpstream, "payment verification service rejected the request")
	}
	return nil
}
