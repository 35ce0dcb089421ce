package reconcile

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/interbroker/bridge-api/internal/venue"
	"github.com/interbroker/bridge-api/pkg/response"
)

// GinHandlers contains the administrative trigger for reconciliation.
type GinHandlers struct {
	engine *Engine
}

// NewGinHandlers creates the HTTP handlers for reconciliation.
func NewGinHandlers(engine *Engine) *GinHandlers {
	return &GinHandlers{engine: engine}
}

// RunHandler handles POST requests to run one reconciliation pass and
// returns its summary. A partial summary is returned with a 503 when
// the venue connection drops mid-pass.
func (h *GinHandlers) RunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, err := h.engine.Run()
		if err != nil {
			if errors.Is(err, venue.ErrNotConnected) || errors.Is(err, venue.ErrConnectionLost) {
				response.ServiceUnavailableData(c, err.Error(), summary)
				return
			}
			response.InternalError(c, err.Error())
			return
		}

		response.Success(c, summary)
	}
}
