// Package tokenstore persists refresh credential state in Redis.
//
// Three key families are used, each carrying its own TTL:
//
//	refresh_token:<token>  -> owner subject id
//	user_tokens:<owner>    -> set of outstanding refresh tokens
//	blacklist:<token>      -> "blacklisted"
//
// A token is either live (record present) or retired (blacklist present),
// never both. Rotation performs the retire-and-activate step in a single Lua
// script so two concurrent rotations of the same token cannot both succeed.
package tokenstore
