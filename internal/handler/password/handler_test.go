package password

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/fitness-api/internal/middleware"
	"github.com/jwalitptl/fitness-api/pkg/metrics"
	"github.com/jwalitptl/fitness-api/pkg/security"
)

type validateResponse struct {
	Status string                    `json:"status"`
	Data   security.ValidationResult `json:"data"`
}

type requirementsResponse struct {
	Status string               `json:"status"`
	Data   RequirementsResponse `json:"data"`
}

func setup(t *testing.T) (*gin.Engine, *security.PolicyStore, *metrics.Metrics) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	v, err := security.NewPolicyValidator(security.DefaultPolicyConfig())
	require.NoError(t, err)
	store := security.NewPolicyStore(v)
	m := metrics.NewMetrics(prometheus.NewRegistry(), "test")

	r := gin.New()
	r.Use(middleware.ErrorHandler())
	NewHandler(store, m).RegisterRoutes(r.Group("/auth"))
	return r, store, m
}

func postValidate(r http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/auth/password/validate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestValidateEndpoint(t *testing.T) {
	r, _, _ := setup(t)

	tests := []struct {
		name       string
		body       string
		valid      bool
		violations []string
	}{
		{"valid", `{"password":"Password1!"}`, true, []string{}},
		{"missing special", `{"password":"NoSpecial123"}`, false, []string{"Password must contain at least one special character"}},
		{"empty", `{"password":""}`, false, []string{"Password is required"}},
		{"absent", `{}`, false, []string{"Password is required"}},
		{"null", `{"password":null}`, false, []string{"Password is required"}},
		{"number", `{"password":12345678}`, false, []string{"Password is required"}},
		{"object", `{"password":{"value":"Password1!"}}`, false, []string{"Password is required"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postValidate(r, tt.body)
			require.Equal(t, http.StatusOK, w.Code)

			var resp validateResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "success", resp.Status)
			assert.Equal(t, tt.valid, resp.Data.Valid)
			assert.Equal(t, tt.violations, resp.Data.Violations)
		})
	}
}

func TestValidateEndpointMalformedJSON(t *testing.T) {
	r, _, _ := setup(t)

	w := postValidate(r, `{"password":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp middleware.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "invalid request body", resp.Message)
}

func TestValidateEndpointRecordsMetrics(t *testing.T) {
	r, _, m := setup(t)

	postValidate(r, `{"password":"Password1!"}`)
	postValidate(r, `{"password":"short1!"}`)
	postValidate(r, `{}`)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PasswordValidations.WithLabelValues("accepted")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PasswordValidations.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PasswordViolations.WithLabelValues("min_length")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PasswordViolations.WithLabelValues("required")))
}

func TestRequirementsEndpoint(t *testing.T) {
	r, store, _ := setup(t)

	get := func() RequirementsResponse {
		req := httptest.NewRequest(http.MethodGet, "/auth/password/requirements", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		var resp requirementsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		return resp.Data
	}

	got := get()
	assert.Equal(t, 8, got.MinLength)
	assert.Equal(t, security.DefaultRules(), got.Rules)
	assert.Equal(t, []string{
		"at least 8 characters long",
		"at least one uppercase letter",
		"at least one lowercase letter",
		"at least one number",
		"at least one special character",
	}, got.Requirements)

	require.NoError(t, store.Swap(security.PolicyConfig{
		MinLength: 10,
		Rules:     []security.RuleID{security.RuleSpecial, security.RuleMinLength},
	}))

	got = get()
	assert.Equal(t, 10, got.MinLength)
	assert.Equal(t, []security.RuleID{security.RuleMinLength, security.RuleSpecial}, got.Rules)
	assert.Equal(t, []string{"at least 10 characters long", "at least one special character"}, got.Requirements)
}
