package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"eventify-api/domain"
	"eventify-api/events"
)

const requestBodyMaxSize = 1 << 20

// response is the envelope every endpoint returns.
type response struct {
	Success    bool               `json:"success"`
	Message    string             `json:"message,omitempty"`
	Data       any                `json:"data,omitempty"`
	Pagination *events.Pagination `json:"pagination,omitempty"`
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, ev Events, regs Registrations, auth Authenticator, logger *log.Logger) {
	e.GET("/api/health", health)
	e.GET("/api/events", listEvents(ev))
	e.GET("/api/events/:id", getEvent(regs, auth))
	e.POST("/api/events", createEvent(ev, auth))
	e.PUT("/api/events/:id", updateEvent(ev, auth))
	e.DELETE("/api/events/:id", deleteEvent(ev, auth))
	e.POST("/api/events/:id/register", registerForEvent(regs, auth, logger))
	e.DELETE("/api/events/:id/register", unregisterFromEvent(regs, auth, logger))
	e.GET("/api/events/:id/registrations", getRoster(regs, auth))
	e.GET("/api/users/my-events", getMyEvents(regs, auth))
}

func health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok", "message": "Eventify API is running"})
}

// httpError maps the error taxonomy onto HTTP statuses. Domain errors keep
// their user-actionable messages; partial and infrastructure failures
// collapse to generic retry guidance.
func httpError(c echo.Context, err error) error {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return c.JSON(http.StatusBadRequest, response{Message: verr.Error()})
	}
	var nf *domain.NotFoundError
	if errors.As(err, &nf) {
		return c.JSON(http.StatusNotFound, response{Message: "Event not found"})
	}
	switch {
	case errors.Is(err, domain.ErrAlreadyRegistered):
		return c.JSON(http.StatusBadRequest, response{Message: "You are already registered for this event"})
	case errors.Is(err, domain.ErrNotRegistered):
		return c.JSON(http.StatusBadRequest, response{Message: "You are not registered for this event"})
	case errors.Is(err, domain.ErrEventFull):
		return c.JSON(http.StatusBadRequest, response{Message: "This event is fully booked"})
	}
	var partial *domain.PartialRegistrationError
	if errors.As(err, &partial) {
		return c.JSON(http.StatusInternalServerError, response{Message: "Registration could not be completed, please try again"})
	}
	var infra *domain.InfrastructureError
	if errors.As(err, &infra) {
		return c.JSON(http.StatusServiceUnavailable, response{Message: "Service temporarily unavailable, please try again"})
	}
	c.Logger().Error(err)
	return c.JSON(http.StatusInternalServerError, response{Message: "Internal Server Error"})
}

func identity(c echo.Context, auth Authenticator) (domain.Identity, error) {
	return auth.IdentityFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
}

func adminIdentity(c echo.Context, auth Authenticator) (domain.Identity, bool, error) {
	id, err := identity(c, auth)
	if err != nil {
		return domain.Identity{}, false, err
	}
	return id, id.IsAdmin(), nil
}

func forbidden(c echo.Context, role string) error {
	return c.JSON(http.StatusForbidden, response{Message: "Role '" + role + "' is not authorized to access this resource"})
}

func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func listEvents(ev Events) echo.HandlerFunc {
	return func(c echo.Context) error {
		f := events.Filter{
			Search:   c.QueryParam("search"),
			Category: c.QueryParam("category"),
		}
		if raw := c.QueryParam("page"); raw != "" {
			page, err := strconv.Atoi(raw)
			if err != nil || page <= 0 {
				return c.JSON(http.StatusBadRequest, response{Message: "invalid page"})
			}
			f.Page = page
		}
		if raw := c.QueryParam("limit"); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil || limit <= 0 {
				return c.JSON(http.StatusBadRequest, response{Message: "invalid limit"})
			}
			f.PageSize = limit
		}

		res, err := ev.List(c.Request().Context(), f)
		if err != nil {
			return httpError(c, err)
		}
		return c.JSON(http.StatusOK, response{Success: true, Data: res.Events, Pagination: &res.Pagination})
	}
}

func getEvent(regs Registrations, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		// Anonymous browsing is allowed; a valid token only adds the
		// viewer's registration flag.
		viewerID := ""
		if id, err := identity(c, auth); err == nil {
			viewerID = id.UserID
		}
		detail, err := regs.Detail(c.Request().Context(), c.Param("id"), viewerID)
		if err != nil {
			return httpError(c, err)
		}
		return c.JSON(http.StatusOK, response{Success: true, Data: detail})
	}
}

func createEvent(ev Events, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, admin, err := adminIdentity(c, auth)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, response{Message: err.Error()})
		}
		if !admin {
			return forbidden(c, id.Role)
		}
		var in domain.EventInput
		if err := decodeBody(c, &in); err != nil {
			return c.JSON(http.StatusBadRequest, response{Message: "invalid body"})
		}
		view, err := ev.Create(c.Request().Context(), in, id.UserID)
		if err != nil {
			return httpError(c, err)
		}
		return c.JSON(http.StatusCreated, response{Success: true, Message: "Event created successfully", Data: view})
	}
}

func updateEvent(ev Events, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, admin, err := adminIdentity(c, auth)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, response{Message: err.Error()})
		}
		if !admin {
			return forbidden(c, id.Role)
		}
		var patch domain.EventPatch
		if err := decodeBody(c, &patch); err != nil {
			return c.JSON(http.StatusBadRequest, response{Message: "invalid body"})
		}
		view, err := ev.Update(c.Request().Context(), c.Param("id"), patch)
		if err != nil {
			return httpError(c, err)
		}
		return c.JSON(http.StatusOK, response{Success: true, Message: "Event updated successfully", Data: view})
	}
}

func deleteEvent(ev Events, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, admin, err := adminIdentity(c, auth)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, response{Message: err.Error()})
		}
		if !admin {
			return forbidden(c, id.Role)
		}
		if err := ev.Delete(c.Request().Context(), c.Param("id")); err != nil {
			return httpError(c, err)
		}
		return c.JSON(http.StatusOK, response{Success: true, Message: "Event deleted successfully"})
	}
}

func registerForEvent(regs Registrations, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics := newRegistrationMetrics(logger, "/api/events/:id/register")
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		id, authErr := identity(c, auth)
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetOutcome("unauthorized")
			err = c.JSON(http.StatusUnauthorized, response{Message: authErr.Error()})
			return err
		}

		storeStart := time.Now()
		regErr := regs.Register(c.Request().Context(), id.UserID, c.Param("id"))
		metrics.ObserveStore(time.Since(storeStart))
		if regErr != nil {
			metrics.SetOutcome(outcomeFor(regErr))
			err = httpError(c, regErr)
			return err
		}
		metrics.SetOutcome("registered")
		err = c.JSON(http.StatusOK, response{Success: true, Message: "Successfully registered for the event!"})
		return err
	}
}

func unregisterFromEvent(regs Registrations, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics := newRegistrationMetrics(logger, "/api/events/:id/register")
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		id, authErr := identity(c, auth)
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetOutcome("unauthorized")
			err = c.JSON(http.StatusUnauthorized, response{Message: authErr.Error()})
			return err
		}

		storeStart := time.Now()
		regErr := regs.Unregister(c.Request().Context(), id.UserID, c.Param("id"))
		metrics.ObserveStore(time.Since(storeStart))
		if regErr != nil {
			metrics.SetOutcome(outcomeFor(regErr))
			err = httpError(c, regErr)
			return err
		}
		metrics.SetOutcome("unregistered")
		err = c.JSON(http.StatusOK, response{Success: true, Message: "Successfully unregistered from the event"})
		return err
	}
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, domain.ErrAlreadyRegistered):
		return "already_registered"
	case errors.Is(err, domain.ErrNotRegistered):
		return "not_registered"
	case errors.Is(err, domain.ErrEventFull):
		return "event_full"
	}
	var nf *domain.NotFoundError
	if errors.As(err, &nf) {
		return "not_found"
	}
	var partial *domain.PartialRegistrationError
	if errors.As(err, &partial) {
		return "partial"
	}
	return "error"
}

func getRoster(regs Registrations, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, admin, err := adminIdentity(c, auth)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, response{Message: err.Error()})
		}
		if !admin {
			return forbidden(c, id.Role)
		}
		roster, err := regs.Roster(c.Request().Context(), c.Param("id"))
		if err != nil {
			return httpError(c, err)
		}
		return c.JSON(http.StatusOK, response{Success: true, Data: roster})
	}
}

func getMyEvents(regs Registrations, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := identity(c, auth)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, response{Message: err.Error()})
		}
		list, err := regs.UserEvents(c.Request().Context(), id.UserID)
		if err != nil {
			return httpError(c, err)
		}
		return c.JSON(http.StatusOK, response{Success: true, Data: list})
	}
}
