package console

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sandipsstha139/quizu-admin/internal/session"
)

// LoginPath is where unauthenticated viewers are sent.
const LoginPath = "/login"

// HomePath is the default protected view.
const HomePath = "/"

const loadingPage = `<!doctype html>
<html>
<head><meta charset="utf-8"><title>Quizu Admin</title></head>
<body><p>Checking session&hellip;</p><script>setTimeout(function(){location.reload();},1000);</script></body>
</html>`

// RequireSession gates protected HTML views. Unauthenticated viewers are
// redirected to the login view before protected content renders. While the
// session is Unknown or Rehydrating a neutral loading page is rendered with
// no redirect, so credential rehydration never causes a redirect flicker.
func RequireSession(manager *session.Manager) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		snapshot := manager.Snapshot()
		switch snapshot.State {
		case session.StateAuthenticated:
			contextGin.Next()
		case session.StateUnknown, session.StateRehydrating:
			contextGin.Header("Cache-Control", "no-store")
			contextGin.Data(http.StatusOK, "text/html; charset=utf-8", []byte(loadingPage))
			contextGin.Abort()
		default:
			contextGin.Redirect(http.StatusFound, LoginPath)
			contextGin.Abort()
		}
	}
}

// RequireSessionAPI gates JSON console endpoints. Unauthenticated callers
// get 401; callers arriving during rehydration get 503 with Retry-After so
// they neither see protected data nor a false logout.
func RequireSessionAPI(manager *session.Manager) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		snapshot := manager.Snapshot()
		switch snapshot.State {
		case session.StateAuthenticated:
			contextGin.Next()
		case session.StateUnknown, session.StateRehydrating:
			contextGin.Header("Retry-After", "1")
			contextGin.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "session_rehydrating"})
		default:
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not_authenticated"})
		}
	}
}

// RedirectAuthenticated keeps authenticated viewers away from the login
// view. During rehydration it renders the loading affordance instead of the
// login form, again without redirecting.
func RedirectAuthenticated(manager *session.Manager) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		snapshot := manager.Snapshot()
		switch snapshot.State {
		case session.StateAuthenticated:
			contextGin.Redirect(http.StatusFound, HomePath)
			contextGin.Abort()
		case session.StateUnknown, session.StateRehydrating:
			contextGin.Header("Cache-Control", "no-store")
			contextGin.Data(http.StatusOK, "text/html; charset=utf-8", []byte(loadingPage))
			contextGin.Abort()
		default:
			contextGin.Next()
		}
	}
}

// RequireAdminRole denies authenticated non-admin users. It assumes a
// session guard already ran.
func RequireAdminRole(manager *session.Manager) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		snapshot := manager.Snapshot()
		if snapshot.State != session.StateAuthenticated || !snapshot.User.IsAdmin() {
			contextGin.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin_role_required"})
			return
		}
		contextGin.Next()
	}
}
