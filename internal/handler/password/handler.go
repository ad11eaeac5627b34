package password

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/fitness-api/internal/handler"
	apperrors "github.com/jwalitptl/fitness-api/pkg/errors"
	"github.com/jwalitptl/fitness-api/pkg/metrics"
	"github.com/jwalitptl/fitness-api/pkg/security"
)

// ValidateRequest carries the candidate as decoded JSON. Password is left
// untyped so null, numbers and objects reach security.Candidate instead of
// failing the bind.
type ValidateRequest struct {
	Password any `json:"password"`
}

type RequirementsResponse struct {
	MinLength    int               `json:"min_length"`
	Rules        []security.RuleID `json:"rules"`
	Requirements []string          `json:"requirements"`
}

type Handler struct {
	policy  *security.PolicyStore
	metrics *metrics.Metrics
}

func NewHandler(policy *security.PolicyStore, m *metrics.Metrics) *Handler {
	return &Handler{policy: policy, metrics: m}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	password := r.Group("/password")
	{
		password.POST("/validate", h.Validate)
		password.GET("/requirements", h.Requirements)
	}
}

// Validate reports the verdict with 200 whether or not the candidate passes;
// the caller decides what a rejection means.
func (h *Handler) Validate(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.BadRequest("invalid request body", err))
		return
	}

	result, failed := h.policy.Load().Evaluate(security.Candidate(req.Password))

	if h.metrics != nil {
		rules := make([]string, len(failed))
		for i, id := range failed {
			rules[i] = string(id)
		}
		h.metrics.ObservePasswordCheck(result.Valid, rules)
	}

	handler.JSON(c, http.StatusOK, result)
}

func (h *Handler) Requirements(c *gin.Context) {
	v := h.policy.Load()
	cfg := v.Config()

	rules := make([]security.RuleID, 0, len(cfg.Rules))
	for _, rule := range v.Rules() {
		rules = append(rules, rule.ID)
	}

	handler.JSON(c, http.StatusOK, RequirementsResponse{
		MinLength:    cfg.MinLength,
		Rules:        rules,
		Requirements: v.DescribeRequirements(),
	})
}
