// Package httpapi exposes the credential lifecycle over HTTP with a
// gorilla/mux router: provider sign-in, refresh, verify, logout and bulk
// revoke, plus health and metrics endpoints.
//
// Credential failures always answer 401 with a generic message; store
// failures answer 500 so clients can tell "sign in again" from "retry".
package httpapi
