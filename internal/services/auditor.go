package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/baharkarakas/booklend/internal/metrics"
	"github.com/baharkarakas/booklend/internal/models"
	repo "github.com/baharkarakas/booklend/internal/repository"
	"github.com/baharkarakas/booklend/internal/worker"
)

// Auditor records denied workflow attempts in audit_logs off the request
// path. It is best effort and separate from the request ledger.
type Auditor struct {
	logs repo.AuditLogs
	wp   *worker.Pool
	log  *slog.Logger
}

func NewAuditor(logs repo.AuditLogs, wp *worker.Pool, log *slog.Logger) *Auditor {
	if log == nil {
		log = slog.Default()
	}
	return &Auditor{logs: logs, wp: wp, log: log}
}

// Denied queues an audit entry when err is a permission, passcode or
// conflict failure. Other outcomes are not audited. It never waits: when
// the worker queue is full the entry is dropped.
func (a *Auditor) Denied(op, requestID, callerID string, err error) {
	if a == nil {
		return
	}
	kind := KindOf(err)
	switch kind {
	case KindUnauthorized, KindInvalidOTP, KindOTPExpired, KindConcurrentModification:
	default:
		return
	}
	entry := models.AuditLog{
		EntityType: "request",
		EntityID:   &requestID,
		Action:     "denied_" + op,
		Details: map[string]any{
			"caller":  callerID,
			"kind":    string(kind),
			"message": err.Error(),
		},
	}
	queued := a.wp.TrySubmit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.logs.Create(ctx, entry); err != nil {
			a.log.Error("audit write", "request_id", requestID, "err", err)
		}
	})
	if !queued {
		metrics.AuditDropped.Inc()
		a.log.Warn("audit queue full, entry dropped", "request_id", requestID, "action", entry.Action)
	}
}
