package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"bitbucket.org/mmdatafocus/fieldforce_backend/utils"
	"github.com/gin-gonic/gin"
)

type capturedScope struct {
	agentId    int
	businessId string
	hasAgent   bool
}

func newSessionTestRouter(scope *capturedScope) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SessionMiddleware())
	r.GET("/whoami", func(c *gin.Context) {
		ctx := c.Request.Context()
		scope.agentId, scope.hasAgent = utils.GetAgentIdFromContext(ctx)
		scope.businessId, _ = utils.GetBusinessIdFromContext(ctx)
		c.Status(http.StatusOK)
	})
	return r
}

func TestSessionMiddleware_ValidTokenScopesRequest(t *testing.T) {
	token, err := utils.JwtGenerate(7, "biz-1", "agent")
	if err != nil {
		t.Fatalf("token generation failed: %v", err)
	}

	var scope capturedScope
	r := newSessionTestRouter(&scope)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("token", token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !scope.hasAgent || scope.agentId != 7 {
		t.Fatalf("expected agent 7 in context, got %d (present=%v)", scope.agentId, scope.hasAgent)
	}
	if scope.businessId != "biz-1" {
		t.Fatalf("expected business biz-1 in context, got %q", scope.businessId)
	}
}

func TestSessionMiddleware_MissingTokenPassesThroughUnscoped(t *testing.T) {
	var scope capturedScope
	r := newSessionTestRouter(&scope)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected pass-through 200, got %d", w.Code)
	}
	if scope.hasAgent {
		t.Fatal("tokenless request must not carry an agent scope")
	}
}

func TestSessionMiddleware_MalformedTokenRejected(t *testing.T) {
	var scope capturedScope
	r := newSessionTestRouter(&scope)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("token", "not-a-jwt")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for malformed token, got %d", w.Code)
	}
}
