// Package loginflow orchestrates authentication against the remote identity
// provider: it executes login attempts over the selected auth strategy,
// interprets error responses into challenge outcomes, completes SSO
// callbacks, validates password reset tokens, and resolves the post-login
// redirect while enforcing application access.
//
// The view state machine driving the user through the flow lives in
// pkg/loginview; this package only knows outcomes, not views.
package loginflow
