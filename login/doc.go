// Package login runs the authorization-code sign-in flow: it hands out an
// identity provider URL bound to a single-use state value, and on callback
// exchanges the code, resolves the local user and mints the first credential
// pair through the Engine.
//
// Providers, user persistence and state storage are interfaces; provider/naver,
// provider/oidc, userstore and [RedisStateStore] supply concrete versions.
package login
