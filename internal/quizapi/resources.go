package quizapi

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sandipsstha139/quizu-admin/internal/apiclient"
)

// Caller is the slice of the API client the resource wrappers need.
type Caller interface {
	Get(ctx context.Context, path string, options ...apiclient.CallOption) (*apiclient.Response, error)
	Post(ctx context.Context, path string, body any, options ...apiclient.CallOption) (*apiclient.Response, error)
	Patch(ctx context.Context, path string, body any, options ...apiclient.CallOption) (*apiclient.Response, error)
	Delete(ctx context.Context, path string, options ...apiclient.CallOption) (*apiclient.Response, error)
}

// Client bundles the per-resource operations.
type Client struct {
	api Caller
}

// NewClient constructs a resource client over the authenticated transport.
func NewClient(api Caller) *Client {
	return &Client{api: api}
}

func statusError(response *apiclient.Response) error {
	var envelope struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(response.Body, &envelope)
	return &StatusError{StatusCode: response.StatusCode, Message: envelope.Message}
}

func list[T any](ctx context.Context, api Caller, path string) (T, error) {
	var payload T
	response, callErr := api.Get(ctx, path)
	if callErr != nil {
		return payload, callErr
	}
	if !response.IsSuccess() {
		return payload, statusError(response)
	}
	payload, decodeErr := apiclient.DecodeEnvelope[T](response)
	if decodeErr != nil {
		return payload, fmt.Errorf("quiz_api.list %s: %w", path, decodeErr)
	}
	return payload, nil
}

func create(ctx context.Context, api Caller, path string, body any) error {
	response, callErr := api.Post(ctx, path, body)
	if callErr != nil {
		return callErr
	}
	if !response.IsSuccess() {
		return statusError(response)
	}
	return nil
}

func remove(ctx context.Context, api Caller, path string) error {
	response, callErr := api.Delete(ctx, path)
	if callErr != nil {
		return callErr
	}
	if !response.IsSuccess() {
		return statusError(response)
	}
	return nil
}

type categoryListPayload struct {
	Categories []Category `json:"categories"`
}

// ListCategories returns all categories.
func (client *Client) ListCategories(ctx context.Context) ([]Category, error) {
	payload, err := list[categoryListPayload](ctx, client.api, "/category")
	return payload.Categories, err
}

// CreateCategory creates a category by name.
func (client *Client) CreateCategory(ctx context.Context, name string) error {
	return create(ctx, client.api, "/category", map[string]string{"name": name})
}

// UpdateCategory renames a category.
func (client *Client) UpdateCategory(ctx context.Context, categoryID string, name string) error {
	response, callErr := client.api.Patch(ctx, "/category/"+categoryID, map[string]string{"name": name})
	if callErr != nil {
		return callErr
	}
	if !response.IsSuccess() {
		return statusError(response)
	}
	return nil
}

// DeleteCategory removes a category.
func (client *Client) DeleteCategory(ctx context.Context, categoryID string) error {
	return remove(ctx, client.api, "/category/"+categoryID)
}

type quizListPayload struct {
	Quizzes []Quiz `json:"quizs"`
}

// ListQuizzes returns all quizzes.
func (client *Client) ListQuizzes(ctx context.Context) ([]Quiz, error) {
	payload, err := list[quizListPayload](ctx, client.api, "/quiz")
	return payload.Quizzes, err
}

// CreateQuiz creates a quiz.
func (client *Client) CreateQuiz(ctx context.Context, quiz Quiz) error {
	return create(ctx, client.api, "/quiz", quiz)
}

// DeleteQuiz removes a quiz.
func (client *Client) DeleteQuiz(ctx context.Context, quizID string) error {
	return remove(ctx, client.api, "/quiz/"+quizID)
}

type questionListPayload struct {
	Questions []Question `json:"questions"`
}

// ListQuestions returns all questions.
func (client *Client) ListQuestions(ctx context.Context) ([]Question, error) {
	payload, err := list[questionListPayload](ctx, client.api, "/question")
	return payload.Questions, err
}

// CreateQuestion creates a question.
func (client *Client) CreateQuestion(ctx context.Context, question Question) error {
	return create(ctx, client.api, "/question", question)
}

// DeleteQuestion removes a question.
func (client *Client) DeleteQuestion(ctx context.Context, questionID string) error {
	return remove(ctx, client.api, "/question/"+questionID)
}

type bookListPayload struct {
	Books []Book `json:"books"`
}

// ListBooks returns all books.
func (client *Client) ListBooks(ctx context.Context) ([]Book, error) {
	payload, err := list[bookListPayload](ctx, client.api, "/book")
	return payload.Books, err
}

// CreateBook creates a book.
func (client *Client) CreateBook(ctx context.Context, book Book) error {
	return create(ctx, client.api, "/book", book)
}

// DeleteBook removes a book.
func (client *Client) DeleteBook(ctx context.Context, bookID string) error {
	return remove(ctx, client.api, "/book/"+bookID)
}

type newsListPayload struct {
	News []News `json:"news"`
}

// ListNews returns all announcements.
func (client *Client) ListNews(ctx context.Context) ([]News, error) {
	payload, err := list[newsListPayload](ctx, client.api, "/news")
	return payload.News, err
}

// CreateNews creates an announcement.
func (client *Client) CreateNews(ctx context.Context, news News) error {
	return create(ctx, client.api, "/news", news)
}

// DeleteNews removes an announcement.
func (client *Client) DeleteNews(ctx context.Context, newsID string) error {
	return remove(ctx, client.api, "/news/"+newsID)
}

type scoreListPayload struct {
	Scores []Score `json:"scores"`
}

// ListScores returns all recorded scores.
func (client *Client) ListScores(ctx context.Context) ([]Score, error) {
	payload, err := list[scoreListPayload](ctx, client.api, "/score")
	return payload.Scores, err
}

// DeleteScore removes a score.
func (client *Client) DeleteScore(ctx context.Context, scoreID string) error {
	return remove(ctx, client.api, "/score/"+scoreID)
}

// The user listing nests players under users.role_user.
type userListPayload struct {
	Users struct {
		RoleUser []PlatformUser `json:"role_user"`
	} `json:"users"`
}

// ListUsers returns all registered players.
func (client *Client) ListUsers(ctx context.Context) ([]PlatformUser, error) {
	payload, err := list[userListPayload](ctx, client.api, "/user")
	return payload.Users.RoleUser, err
}

// DeleteUser removes a registered player.
func (client *Client) DeleteUser(ctx context.Context, userID string) error {
	return remove(ctx, client.api, "/user/"+userID)
}

// CreateAdmin registers a new admin account.
func (client *Client) CreateAdmin(ctx context.Context, fullName string, email string, password string) error {
	return create(ctx, client.api, "/user/create-admin", map[string]string{
		"fullname": fullName,
		"email":    email,
		"password": password,
		"role":     "admin",
	})
}
