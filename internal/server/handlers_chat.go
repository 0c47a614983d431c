package server

import (
	"net/http"

	"github.com/ashita-ai/ichiba/internal/ctxutil"
	"github.com/ashita-ai/ichiba/internal/model"
)

// HandleChat handles POST /v1/chat: one agent turn. The message is appended
// to the supplied history and the final reply comes back together with the
// tool trace and the full message list, which the client may send again as
// the next turn's history.
func (h *Handlers) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req model.ChatRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	result, err := h.engine.RunTurn(r.Context(), req.History, req.Message)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}

	if sub := ctxutil.Subject(r.Context()); sub != "" {
		h.logger.Info("chat turn served",
			"subject", sub,
			"reason", result.Reason,
			"model_calls", result.ModelCalls,
			"tool_calls", result.ToolCallsExecuted,
			"request_id", RequestIDFromContext(r.Context()),
		)
	}

	writeJSON(w, r, http.StatusOK, model.ChatResponse{
		Reply:     result.FinalText,
		Reason:    result.Reason,
		ToolTrace: result.ToolTrace,
		Messages:  result.Messages,
	})
}
