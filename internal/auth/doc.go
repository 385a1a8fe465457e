// Package auth verifies the signed bearer tokens Google Chat attaches to
// webhook calls.
//
// Tokens are RS256 JWTs issued by chat@system.gserviceaccount.com with the
// deployment's project number as audience. Signing keys are read from the
// issuer's published JWKS and cached; an unknown key id triggers a refetch so
// rotated keys are picked up without a restart.
package auth
