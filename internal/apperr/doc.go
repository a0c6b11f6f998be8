// Package apperr defines the gateway's error codes and how they map to HTTP responses.
package apperr
