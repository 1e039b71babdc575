package model

import "errors"

var (
	// ErrNameRequired is returned when a session creation request is missing the name.
	ErrNameRequired = errors.New("name is required")

	// ErrWebhookRequired is returned when a webhook update request is missing the URL.
	ErrWebhookRequired = errors.New("webhook is required")

	// ErrDuplicateSession is returned when creating a session whose name already exists.
	ErrDuplicateSession = errors.New("session already exists")

	// ErrSessionNotFound is returned when a session is not found.
	ErrSessionNotFound = errors.New("session not found")

	// ErrRescanInProgress is returned when a rescan is requested while one is already running.
	ErrRescanInProgress = errors.New("rescan already in progress")

	// ErrClientInit is returned when the external chat client could not be constructed or started.
	ErrClientInit = errors.New("chat client initialization failed")

	// ErrInvalidCredentials is returned when a dashboard login attempt fails.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
