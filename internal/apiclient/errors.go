package apiclient

import "errors"

var (
	// ErrEmptyBaseURL indicates the client was constructed without a backend URL.
	ErrEmptyBaseURL = errors.New("api_client.empty_base_url")
	// ErrNoCredential indicates a refresh was attempted with no stored credential.
	ErrNoCredential = errors.New("api_client.no_credential")
	// ErrRefreshRejected indicates the refresh endpoint answered with a non-success status.
	ErrRefreshRejected = errors.New("api_client.refresh_rejected")
)
