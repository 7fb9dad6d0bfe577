// Package server implements the HTTP surface of the orchestrator's serve
// mode: a webhook endpoint that triggers deployment runs for configured
// targets, plus health and status endpoints backed by the run history.
//
// Webhook requests are authenticated with an HMAC-SHA256 signature over
// the raw payload, GitHub-style, so a repository push hook can point
// straight at /deploy/{target}.
package server
