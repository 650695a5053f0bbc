// Package quizapi provides thin typed clients for the quiz platform's
// business resources. Each endpoint has an explicit response schema decoded
// at the boundary; the authenticated transport, refresh, and retry concerns
// all live in the underlying API client.
package quizapi

import "fmt"

// Category groups quizzes.
type Category struct {
	ID        string `json:"_id"`
	Name      string `json:"name"`
	CreatedAt string `json:"createdAt"`
}

// Quiz is a playable quiz belonging to a category.
type Quiz struct {
	ID          string `json:"_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Duration    int    `json:"duration"`
	CoverImage  string `json:"coverImage"`
	CreatedAt   string `json:"createdAt"`
}

// Question belongs to a quiz.
type Question struct {
	ID            string   `json:"_id"`
	QuestionTitle string   `json:"questionTitle"`
	Options       []string `json:"options"`
	CorrectOption string   `json:"correct_option"`
	Quiz          string   `json:"quiz"`
	CoverImage    string   `json:"coverImage"`
}

// Book is a study resource.
type Book struct {
	ID          string `json:"_id"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	Description string `json:"description"`
	Edition     string `json:"edition"`
	Publication string `json:"publication"`
	CoverImage  string `json:"coverImage"`
}

// News is an announcement shown to players.
type News struct {
	ID          string `json:"_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	CoverImage  string `json:"coverImage"`
}

// Score is a player's quiz result.
type Score struct {
	ID             string `json:"_id"`
	Score          int    `json:"score"`
	CorrectAnswers int    `json:"correctAnswers"`
	WrongAnswers   int    `json:"wrongAnswers"`
	NotAnswered    int    `json:"notAnswered"`
	CreatedAt      string `json:"createdAt"`
}

// PlatformUser is a registered player or admin as the user listing returns it.
type PlatformUser struct {
	ID        string `json:"_id"`
	FullName  string `json:"fullname"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	AvatarURL string `json:"avatar"`
	CreatedAt string `json:"createdAt"`
}

// StatusError conveys a non-success backend status to console handlers.
type StatusError struct {
	StatusCode int
	Message    string
}

// Error renders the status and any backend message.
func (statusError *StatusError) Error() string {
	if statusError.Message == "" {
		return fmt.Sprintf("quiz_api.status_%d", statusError.StatusCode)
	}
	return fmt.Sprintf("quiz_api.status_%d: %s", statusError.StatusCode, statusError.Message)
}
