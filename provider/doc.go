// Package provider holds identity provider adapters for the login package.
// Each subpackage implements login.Provider.
package provider
