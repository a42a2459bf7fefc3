package ipc

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"handsoffd/internal/session"
	"handsoffd/internal/store"
)

// Controller is the slice of the session controller the IPC surface
// drives. *session.Controller satisfies it.
type Controller interface {
	Status() session.StatusReport
	Lock(reason string) error
	Unlock(passphrase string) error
	Enable() error
	Disable() error
	RestartTap() error
	ReloadConfig() error
}

// HistorySource serves audit-trail queries. *store.Store satisfies it.
type HistorySource interface {
	Recent(ctx context.Context, limit int, since time.Time) ([]store.Transition, error)
}

// DaemonHandler routes IPC commands to the session controller.
type DaemonHandler struct {
	ctrl       Controller
	history    HistorySource
	logger     *slog.Logger
	onShutdown func()
}

// NewDaemonHandler creates the daemon-side message handler. history may
// be nil when the audit trail is disabled; onShutdown may be nil to
// refuse remote shutdown.
func NewDaemonHandler(ctrl Controller, history HistorySource, onShutdown func(), logger *slog.Logger) *DaemonHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DaemonHandler{
		ctrl:       ctrl,
		history:    history,
		logger:     logger.With("component", "ipc-handler"),
		onShutdown: onShutdown,
	}
}

// HandleMessage implements Handler.
func (h *DaemonHandler) HandleMessage(ctx context.Context, conn *ClientConn, msg *Message) (*Message, error) {
	reqID := msg.Header.RequestID

	switch msg.Header.Type {
	case MsgStatusRequest:
		return h.handleStatus(reqID)

	case MsgLock:
		var req LockRequest
		if err := Decode(msg.Payload, &req); err != nil {
			return NewErrorMessage(reqID, ErrCodeInvalidRequest, "invalid lock request"), nil
		}
		return h.ackOrError(reqID, MsgLockResp, h.ctrl.Lock(req.Reason))

	case MsgUnlock:
		var req UnlockRequest
		if err := Decode(msg.Payload, &req); err != nil {
			return NewErrorMessage(reqID, ErrCodeInvalidRequest, "invalid unlock request"), nil
		}
		return h.ackOrError(reqID, MsgUnlockResp, h.ctrl.Unlock(req.Passphrase))

	case MsgEnable:
		return h.ackOrError(reqID, MsgEnableResp, h.ctrl.Enable())

	case MsgDisable:
		return h.ackOrError(reqID, MsgDisableResp, h.ctrl.Disable())

	case MsgRestartTap:
		return h.ackOrError(reqID, MsgRestartTapResp, h.ctrl.RestartTap())

	case MsgReloadConfig:
		return h.ackOrError(reqID, MsgReloadConfigResp, h.ctrl.ReloadConfig())

	case MsgHistoryRequest:
		return h.handleHistory(ctx, reqID, msg)

	case MsgShutdown:
		if h.onShutdown == nil {
			return NewErrorMessage(reqID, ErrCodeInvalidRequest, "remote shutdown not permitted"), nil
		}
		h.logger.Info("shutdown requested over ipc", "client", conn.ID)
		// Acknowledge before the daemon starts tearing connections down.
		go h.onShutdown()
		return NewResponse(MsgShutdown, reqID, &AckResponse{Success: true})

	default:
		return NewErrorMessage(reqID, ErrCodeInvalidRequest, "unknown message type"), nil
	}
}

func (h *DaemonHandler) handleStatus(reqID uint32) (*Message, error) {
	s := h.ctrl.Status()

	resp := &StatusResponse{
		Version:             s.Version,
		StartedAt:           s.StartedAt,
		Uptime:              time.Since(s.StartedAt),
		Locked:              s.Locked,
		Disabled:            s.Disabled,
		HasPermission:       s.HasPermission,
		TapRunning:          s.TapRunning,
		TalkKeyHeld:         s.TalkKeyHeld,
		BufferLen:           s.BufferLen,
		LockElapsed:         s.LockElapsed,
		AutoUnlockRemaining: s.AutoUnlockRemaining,
		AutoLockRemaining:   s.AutoLockRemaining,
		TapsCreated:         s.TapsCreated,
		TapsReleased:        s.TapsReleased,
	}
	return NewResponse(MsgStatusResponse, reqID, resp)
}

func (h *DaemonHandler) handleHistory(ctx context.Context, reqID uint32, msg *Message) (*Message, error) {
	if h.history == nil {
		return NewErrorMessage(reqID, ErrCodeInvalidRequest, "history is disabled"), nil
	}

	var req HistoryRequest
	if err := Decode(msg.Payload, &req); err != nil {
		return NewErrorMessage(reqID, ErrCodeInvalidRequest, "invalid history request"), nil
	}

	transitions, err := h.history.Recent(ctx, req.Limit, req.Since)
	if err != nil {
		h.logger.Error("history query failed", "error", err)
		return NewErrorMessage(reqID, ErrCodeInternal, "history query failed"), nil
	}

	resp := &HistoryResponse{Total: len(transitions)}
	for _, t := range transitions {
		resp.Entries = append(resp.Entries, HistoryEntry{
			ID:        t.ID,
			Timestamp: t.Timestamp,
			Event:     t.Event,
			Reason:    t.Reason,
		})
	}
	return NewResponse(MsgHistoryResponse, reqID, resp)
}

// ackOrError converts a controller result into the wire response.
func (h *DaemonHandler) ackOrError(reqID uint32, respType MessageType, err error) (*Message, error) {
	if err == nil {
		return NewResponse(respType, reqID, &AckResponse{Success: true})
	}
	return NewErrorMessage(reqID, errorCode(err), err.Error()), nil
}

// errorCode maps controller errors to protocol error codes.
func errorCode(err error) int {
	switch {
	case errors.Is(err, session.ErrLocked):
		return ErrCodeLocked
	case errors.Is(err, session.ErrNotLocked):
		return ErrCodeNotLocked
	case errors.Is(err, session.ErrDisabled):
		return ErrCodeDisabled
	case errors.Is(err, session.ErrBadPassphrase):
		return ErrCodeBadPassphrase
	case errors.Is(err, session.ErrNoPermission):
		return ErrCodeNoPermission
	case errors.Is(err, session.ErrNotRunning), errors.Is(err, session.ErrAlreadyRunning):
		return ErrCodeTapFailure
	default:
		return ErrCodeInternal
	}
}
