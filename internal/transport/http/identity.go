package httptransport

import (
	"net/http"
	"time"

	"image-processor-go/internal/domain/session"
)

// Identity binds browsers to sessions through the signed ip_session cookie.
type Identity struct {
	signer *session.TokenSigner
	secure bool
}

// NewIdentity creates an Identity. secure sets the cookie's Secure attribute.
func NewIdentity(signer *session.TokenSigner, secure bool) *Identity {
	return &Identity{signer: signer, secure: secure}
}

// SessionID returns the id carried by the request cookie, or "" when the
// cookie is missing, tampered with or expired.
func (i *Identity) SessionID(r *http.Request) string {
	id, _ := i.resolve(r)
	return id
}

// NeedsRefresh reports whether the request carries a valid cookie that has
// used up more than half of its lifetime.
func (i *Identity) NeedsRefresh(r *http.Request) bool {
	id, issued := i.resolve(r)
	if id == "" {
		return false
	}
	return issued.IsZero() || time.Since(issued) > i.signer.TTL()/2
}

func (i *Identity) resolve(r *http.Request) (string, time.Time) {
	cookie, err := r.Cookie(session.CookieName)
	if err != nil || cookie.Value == "" {
		return "", time.Time{}
	}
	id, issued, err := i.signer.ParseIssued(cookie.Value)
	if err != nil {
		return "", time.Time{}
	}
	return id, issued
}

// Remember writes a fresh cookie for id.
func (i *Identity) Remember(w http.ResponseWriter, id string) error {
	token, err := i.signer.Issue(id)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(i.signer.TTL().Seconds()),
		HttpOnly: true,
		Secure:   i.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}
