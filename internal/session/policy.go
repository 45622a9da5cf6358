// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

// View names a screen of the client.
type View string

const (
	ViewHome          View = "home"
	ViewChat          View = "chat"
	ViewProfile       View = "profile"
	ViewSignIn        View = "signin"
	ViewSignUp        View = "signup"
	ViewResetPassword View = "resetPassword"
	ViewVerifiedEmail View = "verifiedEmail"
)

// authOnly views make no sense once signed in.
var authOnly = map[View]bool{
	ViewSignIn:        true,
	ViewSignUp:        true,
	ViewResetPassword: true,
	ViewVerifiedEmail: true,
}

// protected views require a session.
var protected = map[View]bool{
	ViewChat:    true,
	ViewProfile: true,
}

// Policy returns where the caller should go instead of view for session s,
// and whether a redirect is needed at all. Acting on it is the caller's job.
func Policy(view View, s Session) (View, bool) {
	switch {
	case s.IsAuthenticated() && authOnly[view]:
		return ViewHome, true
	case !s.IsAuthenticated() && protected[view]:
		return ViewSignIn, true
	default:
		return view, false
	}
}
