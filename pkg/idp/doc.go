// Package idp is an in-memory identity provider speaking the platform REST
// API the login flow consumes. It needs no database, which makes it useful
// for quick development, demo environments and end-to-end tests of the
// flow: accounts can be configured with SMS or TOTP two-factor modes, forced
// password resets and missing phone numbers to provoke every challenge the
// flow classifies.
//
// All data is lost when the process stops.
package idp
