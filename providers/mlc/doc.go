// Package mlc provides the Major League Cyber login provider.
//
// The provider sends players to MLC's authorization endpoint and, on the
// callback, exchanges the authorization code for an access token, reads the
// player's profile and maps it onto local records:
//   - an unknown email provisions a new verified user, subject to the
//     registration setting and the user limit
//   - a known, never-linked email is linked to the MLC subject id
//   - in teams mode a player without a team joins (or founds) the team MLC
//     reports, subject to the team count and team size limits
//
// Endpoints and client credentials resolve through settings.Layered: the
// OAUTH_* environment overrides first, then the stored oauth_* settings, then
// MLC's public endpoints.
//
// Example usage:
//
//	provider, err := mlc.NewProvider(&mlc.Config{
//	    Settings: settings.NewLayered(overrides, db),
//	    Store:    db,
//	    Sessions: sessions,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
package mlc
