package social

import "context"

// Identity es lo que el core necesita de un identity provider después de un
// exchange exitoso.
type Identity struct {
	Subject       string // ID estable del usuario en el provider
	Email         string
	EmailVerified bool
	Name          string
}

// Provider abstrae un identity provider externo (Google OIDC, GitHub OAuth).
// Las implementaciones viven en internal/oauth/*; la máquina de estados no
// sabe de HTTP ni de JWKS.
type Provider interface {
	Name() string

	// AuthURL arma la URL de autorización para redirigir al usuario. Puede
	// tocar red (discovery OIDC), de ahí el ctx.
	AuthURL(ctx context.Context, state, nonce string) (string, error)

	// Exchange canjea el code del callback y valida la respuesta (nonce
	// incluido si el provider lo soporta). Errores => ErrUpstreamExchangeFailed
	// del lado del caller.
	Exchange(ctx context.Context, code, nonce string) (Identity, error)
}
