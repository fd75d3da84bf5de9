package repository

// TokenStore reports the current auth token. Reads must be cheap and non-blocking.
type TokenStore interface {
	Token() string
	HasToken() bool
}
