package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"shopsense/internal/models"
)

// SessionCookie names the anonymous-session cookie.
const SessionCookie = "shopsense_session"

// SubjectKey is the Locals key where the resolved subject is stored.
const SubjectKey = "subject"

// ResolveSubject determines the owner of the request's history streams:
// the X-User-ID header when present, otherwise the session cookie (minting
// one for first-time anonymous visitors), otherwise the anonymous fallback.
func ResolveSubject() fiber.Handler {
	return func(c *fiber.Ctx) error {
		subject := c.Get("X-User-ID")

		if subject == "" {
			subject = c.Cookies(SessionCookie)
			if subject == "" {
				subject = "sess_" + uuid.NewString()
				c.Cookie(&fiber.Cookie{
					Name:     SessionCookie,
					Value:    subject,
					Expires:  time.Now().Add(7 * 24 * time.Hour),
					HTTPOnly: true,
					SameSite: "Lax",
				})
			}
		}

		if subject == "" {
			subject = models.AnonymousSubject
		}

		c.Locals(SubjectKey, subject)
		return c.Next()
	}
}

// Subject reads the resolved subject from the request context.
func Subject(c *fiber.Ctx) string {
	if subject, ok := c.Locals(SubjectKey).(string); ok && subject != "" {
		return subject
	}
	return models.AnonymousSubject
}
