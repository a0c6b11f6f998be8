// Package auth authenticates gateway callers.
//
// # Issuer Selection
//
// Tokens are matched to a trusted issuer by their unverified "iss" claim, then verified
// against that issuer's JWKS endpoint or shared secret:
//
//   - Explicit issuer list: the token's issuer must be in the list.
//   - Global JWKS: with no list, a single globally configured issuer is used.
//   - Shared secret: with neither, tokens are HS256 tokens signed with jwt_secret.
//
// Issuers may restrict the tenant ("tid") and the authorized party ("azp" or "appid"),
// and may pin the application scope.
//
// # Roles
//
// An explicit "role" claim wins and is normalized to viewer, analyst, manager or admin.
// Otherwise group claims ("cognito:groups", "groups", "roles") are searched for admin,
// manager and analyst in that order. Anything unrecognized becomes viewer.
//
// # Development Mode
//
// With auth.dev_mode enabled, x-dev-user, x-dev-role and x-dev-app headers are trusted
// without any verification. Mint produces local HS256 tokens for the same purpose.
package auth
