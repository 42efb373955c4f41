package auth

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// Capability names an operation guarded by role membership.
type Capability string

const (
	CapTicketCreate  Capability = "ticket:create"
	CapTicketRead    Capability = "ticket:read"
	CapTicketUpdate  Capability = "ticket:update"
	CapTicketComment Capability = "ticket:comment"
	CapTicketArchive Capability = "ticket:archive"
)

// Policy maps each capability to the roles allowed to exercise it.
type Policy map[Capability][]domain.Role

// DefaultPolicy is the role matrix applied at the HTTP boundary.
func DefaultPolicy() Policy {
	return Policy{
		CapTicketCreate:  domain.Roles,
		CapTicketRead:    domain.Roles,
		CapTicketUpdate:  domain.Roles,
		CapTicketComment: domain.Roles,
		CapTicketArchive: {domain.RoleAdministrator, domain.RoleManager},
	}
}

// Allows reports whether role may exercise capability. Unknown capabilities are denied.
func (p Policy) Allows(capability Capability, role domain.Role) bool {
	for _, allowed := range p[capability] {
		if allowed == role {
			return true
		}
	}
	return false
}

// Require gates a route on the roles registered for capability.
func (p Policy) Require(capability Capability) fiber.Handler {
	return RequireRole(p[capability]...)
}

// RequireRole ensures the authenticated principal holds one of the allowed roles.
func RequireRole(allowed ...domain.Role) fiber.Handler {
	names := make([]string, 0, len(allowed))
	for _, role := range allowed {
		names = append(names, string(role))
	}
	allowedList := strings.Join(names, ", ")

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("not authorized")
		}
		for _, role := range allowed {
			if principal.User.Role == role {
				return c.Next()
			}
		}
		return apperrors.NewForbidden(fmt.Sprintf(
			"user with role '%s' is not allowed to access this resource; allowed roles: %s",
			principal.User.Role, allowedList))
	}
}
