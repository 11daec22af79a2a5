// Package userstore persists local users and login history for the login
// package, and resolves credential owners for the Engine.
//
// [Postgres] stores users in PostgreSQL through database/sql and lib/pq.
// [Memory] keeps everything in process for development and tests.
// Both implement login.UserStore and credgate.OwnerDirectory.
package userstore
