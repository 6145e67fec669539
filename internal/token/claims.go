package token

import (
	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// SubscriptionSnapshot es la foto del estado de suscripción del tenant al
// momento de emitir el token. Inmutable una vez embebida: nunca se muta,
// sólo se re-emite el token.
type SubscriptionSnapshot struct {
	Status            string `json:"status"`
	Plan              string `json:"plan"`
	PeriodEnd         int64  `json:"period_end,omitempty"` // unix seconds
	TrialEnd          int64  `json:"trial_end,omitempty"`  // unix seconds
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end,omitempty"`
}

// Claims son los claims de sesión del end-user.
// Subject (sub) es el ID del end-user; tid/dom identifican al tenant.
type Claims struct {
	TenantID     string               `json:"tid"`
	TenantHost   string               `json:"dom"`
	Roles        []string             `json:"roles,omitempty"`
	Subscription SubscriptionSnapshot `json:"sub_state"`

	jwtv5.RegisteredClaims
}
