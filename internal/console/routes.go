// Package console serves the admin console: the embedded browser shell, the
// session endpoints driving login and logout, and JSON pass-throughs for the
// quiz platform's business resources. Every route is gated on the session
// state; no handler touches the credential store directly.
package console

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sandipsstha139/quizu-admin/internal/quizapi"
	"github.com/sandipsstha139/quizu-admin/internal/session"
	"go.uber.org/zap"
)

// MountConsoleRoutes registers the console shell, session endpoints, and
// resource pass-throughs.
func MountConsoleRoutes(router gin.IRouter, sessions *session.Manager, resources *quizapi.Client, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}

	router.GET(HomePath, RequireSession(sessions), func(contextGin *gin.Context) {
		ServeEmbeddedAsset(contextGin, "console.html", "text/html; charset=utf-8")
	})
	router.GET(LoginPath, RedirectAuthenticated(sessions), func(contextGin *gin.Context) {
		ServeEmbeddedAsset(contextGin, "login.html", "text/html; charset=utf-8")
	})
	router.GET("/static/console.js", func(contextGin *gin.Context) {
		ServeEmbeddedAsset(contextGin, "console.js", "application/javascript; charset=utf-8")
	})

	router.POST("/login", handleLogin(sessions, logger))
	router.POST("/logout", func(contextGin *gin.Context) {
		_ = sessions.Logout(contextGin.Request.Context())
		contextGin.Status(http.StatusNoContent)
	})
	router.GET("/session", func(contextGin *gin.Context) {
		snapshot := sessions.Snapshot()
		contextGin.JSON(http.StatusOK, sessionView(snapshot))
	})

	api := router.Group("/api")
	api.Use(RequireSessionAPI(sessions))
	mountResourceRoutes(api, sessions, resources)
}

func handleLogin(sessions *session.Manager, logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		var inbound struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := contextGin.BindJSON(&inbound); err != nil || strings.TrimSpace(inbound.Email) == "" || inbound.Password == "" {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
			return
		}

		loginErr := sessions.Login(contextGin.Request.Context(), inbound.Email, inbound.Password)
		switch {
		case loginErr == nil:
			contextGin.JSON(http.StatusOK, sessionView(sessions.Snapshot()))
		case errors.Is(loginErr, session.ErrNotAdmin):
			contextGin.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not_authorized"})
		case errors.Is(loginErr, session.ErrLoginRejected):
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "login_failed"})
		default:
			logger.Warn("login attempt failed",
				zap.String("code", "console.login_failed"),
				zap.Error(loginErr))
			contextGin.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "backend_unreachable"})
		}
	}
}

func sessionView(snapshot session.Snapshot) gin.H {
	view := gin.H{
		"state":   snapshot.State.String(),
		"loading": snapshot.Loading,
	}
	if snapshot.State == session.StateAuthenticated {
		view["user"] = snapshot.User
	}
	return view
}

func writeResourceError(contextGin *gin.Context, err error) {
	var backendStatus *quizapi.StatusError
	if errors.As(err, &backendStatus) {
		contextGin.AbortWithStatusJSON(backendStatus.StatusCode, gin.H{"error": backendStatus.Message})
		return
	}
	contextGin.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "backend_unreachable"})
}

func mountResourceRoutes(api gin.IRouter, sessions *session.Manager, resources *quizapi.Client) {
	api.GET("/categories", func(contextGin *gin.Context) {
		categories, err := resources.ListCategories(contextGin.Request.Context())
		if err != nil {
			writeResourceError(contextGin, err)
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{"categories": categories})
	})
	api.POST("/categories", func(contextGin *gin.Context) {
		var inbound struct {
			Name string `json:"name"`
		}
		if err := contextGin.BindJSON(&inbound); err != nil || strings.TrimSpace(inbound.Name) == "" {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
			return
		}
		if err := resources.CreateCategory(contextGin.Request.Context(), inbound.Name); err != nil {
			writeResourceError(contextGin, err)
			return
		}
		contextGin.Status(http.StatusCreated)
	})
	api.PATCH("/categories/:id", func(contextGin *gin.Context) {
		var inbound struct {
			Name string `json:"name"`
		}
		if err := contextGin.BindJSON(&inbound); err != nil || strings.TrimSpace(inbound.Name) == "" {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
			return
		}
		if err := resources.UpdateCategory(contextGin.Request.Context(), contextGin.Param("id"), inbound.Name); err != nil {
			writeResourceError(contextGin, err)
			return
		}
		contextGin.Status(http.StatusNoContent)
	})
	api.DELETE("/categories/:id", func(contextGin *gin.Context) {
		if err := resources.DeleteCategory(contextGin.Request.Context(), contextGin.Param("id")); err != nil {
			writeResourceError(contextGin, err)
			return
		}
		contextGin.Status(http.StatusNoContent)
	})

	api.GET("/quizzes", func(contextGin *gin.Context) {
		quizzes, err := resources.ListQuizzes(contextGin.Request.Context())
		if err != nil {
			writeResourceError(contextGin, err)
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{"quizzes": quizzes})
	})
	api.POST("/quizzes", func(contextGin *gin.Context) {
		var inbound quizapi.Quiz
		if err := contextGin.BindJSON(&inbound); err != nil || strings.TrimSpace(inbound.Title) == "" {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
			return
		}
		if err := resources.CreateQuiz(contextGin.Request.Context(), inbound); err != nil {
			writeResourceError(contextGin, err)
			return
		}
		contextGin.Status(http.StatusCreated)
	})
	api.DELETE("/quizzes/:id", func(contextGin *gin.Context) {
		if err := resources.DeleteQuiz(contextGin.Request.Context(), contextGin.Param("id")); err != nil {
			writeResourceError(contextGin, err)
			return
		}
		contextGin.Status(http.StatusNoContent)
	})

	api.GET("/questions", func(contextGin *gin.Context) {
		questions, err := resources.ListQuestions(contextGin.Request.Context())
		if err != nil {
			writeResourceError(contextGin, err)
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{"questions": questions})
	})
	api.POST("/questions", func(contextGin *gin.Context) {
		var inbound quizapi.Question
		if err := contextGin.BindJSON(&inbound); err != nil || strings.TrimSpace(inbound.QuestionTitle) == "" {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
			return
		}
		if err := resources.CreateQuestion(contextGin.Request.Context(), inbound); err != nil {
			writeResourceError(contextGin, err)
			return
		}
		contextGin.Status(http.StatusCreated)
	})
	api.DELETE("/questions/:id", func(contextGin *gin.Context) {
		if err := resources.DeleteQuestion(contextGin.Request.Context(), contextGin.Param("id")); err != nil {
			writeResourceError(contextGin, err)
			return
		}
		contextGin.Status(http.StatusNoContent)
	})

	api.GET("/books", func(contextGin *gin.Context) {
		books, err := resources.ListBooks(contextGin.Request.Context())
		if err != nil {
			writeResourceError(contextGin, err)
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{"books": books})
	})
	api.POST("/books", func(contextGin *gin.Context) {
		var inbound quizapi.Book
		if err := contextGin.BindJSON(&inbound); err != nil || strings.TrimSpace(inbound.Title) == "" {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
			return
		}
		if err := resources.CreateBook(contextGin.Request.Context(), inbound); err != nil {
			writeResourceError(contextGin, err)
			return
		}
		contextGin.Status(http.StatusCreated)
	})
	api.DELETE("/books/:id", func(contextGin *gin.Context) {
		if err := resources.DeleteBook(contextGin.Request.Context(), contextGin.Param("id")); err != nil {
			writeResourceError(contextGin, err)
			return
		}
		contextGin.Status(http.StatusNoContent)
	})

	api.GET("/news", func(contextGin *gin.Context) {
		news, err := resources.ListNews(contextGin.Request.Context())
		if err != nil {
			writeResourceError(contextGin, err)
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{"news": news})
	})
	api.POST("/news", func(contextGin *gin.Context) {
		var inbound quizapi.News
		if err := contextGin.BindJSON(&inbound); err != nil || strings.TrimSpace(inbound.Title) == "" {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
			return
		}
		if err := resources.CreateNews(contextGin.Request.Context(), inbound); err != nil {
			writeResourceError(contextGin, err)
			return
		}
		contextGin.Status(http.StatusCreated)
	})
	api.DELETE("/news/:id", func(contextGin *gin.Context) {
		if err := resources.DeleteNews(contextGin.Request.Context(), contextGin.Param("id")); err != nil {
			writeResourceError(contextGin, err)
			return
		}
		contextGin.Status(http.StatusNoContent)
	})

	api.GET("/scores", func(contextGin *gin.Context) {
		scores, err := resources.ListScores(contextGin.Request.Context())
		if err != nil {
			writeResourceError(contextGin, err)
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{"scores": scores})
	})
	api.DELETE("/scores/:id", func(contextGin *gin.Context) {
		if err := resources.DeleteScore(contextGin.Request.Context(), contextGin.Param("id")); err != nil {
			writeResourceError(contextGin, err)
			return
		}
		contextGin.Status(http.StatusNoContent)
	})

	api.GET("/users", func(contextGin *gin.Context) {
		users, err := resources.ListUsers(contextGin.Request.Context())
		if err != nil {
			writeResourceError(contextGin, err)
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{"users": users})
	})
	api.DELETE("/users/:id", func(contextGin *gin.Context) {
		if err := resources.DeleteUser(contextGin.Request.Context(), contextGin.Param("id")); err != nil {
			writeResourceError(contextGin, err)
			return
		}
		contextGin.Status(http.StatusNoContent)
	})

	api.POST("/admins", RequireAdminRole(sessions), func(contextGin *gin.Context) {
		var inbound struct {
			FullName string `json:"fullname"`
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := contextGin.BindJSON(&inbound); err != nil || strings.TrimSpace(inbound.Email) == "" || inbound.Password == "" {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
			return
		}
		if err := resources.CreateAdmin(contextGin.Request.Context(), inbound.FullName, inbound.Email, inbound.Password); err != nil {
			writeResourceError(contextGin, err)
			return
		}
		contextGin.Status(http.StatusCreated)
	})
}
