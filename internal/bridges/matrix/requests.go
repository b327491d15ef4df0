package matrix

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-matrix/internal/audit"
)

// runRequest answers one query on the response topic.
func (b *Bridge) runRequest(ctx context.Context, req RequestMessage) {
	data, err := b.answer(ctx, req)
	if err != nil {
		b.logWarn("request failed", "request_id", req.RequestID, "action", req.Action, "error", err)
	}
	b.publishResponse(newResponse(b.cfg.ID, req.RequestID, data, err))

	details := map[string]any{"request_id": req.RequestID, "action": req.Action, "success": err == nil}
	if err != nil {
		details["error"] = err.Error()
	}
	b.recordAudit(audit.ActionRequest, "mqtt", "", details)
}

func (b *Bridge) answer(ctx context.Context, req RequestMessage) (map[string]any, error) {
	switch req.Action {
	case ActionReadStatus:
		status, err := b.matrix.Status(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"status": status}, nil

	case ActionReadType:
		model, err := b.matrix.Type(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"model": model}, nil

	case ActionReadSnapshot:
		snap, ok := b.coordinator.Snapshot()
		if !ok {
			return map[string]any{"available": false}, nil
		}
		return map[string]any{"available": true, "snapshot": snap}, nil

	default:
		return nil, fmt.Errorf("%w: request action %q", ErrUnknownCommand, req.Action)
	}
}
