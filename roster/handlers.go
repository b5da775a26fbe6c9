package roster

import (
	"errors"
	"fmt"
	"net/http"
	"net/mail"

	"github.com/bluesky-social/roster/users"

	"github.com/carlmjohnson/versioninfo"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type GenericError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type GenericStatus struct {
	Daemon  string `json:"daemon"`
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Message string `json:"msg,omitempty"`
}

// GET /health
func (srv *Server) HandleHealthCheck(c echo.Context) error {
	if err := srv.db.WithContext(c.Request().Context()).Exec("SELECT 1").Error; err != nil {
		srv.log.Error("healthcheck can't connect to database", "err", err)
		return c.JSON(http.StatusInternalServerError, GenericStatus{
			Daemon:  "roster",
			Status:  "error",
			Message: "can't connect to database",
		})
	}
	return c.JSON(http.StatusOK, GenericStatus{
		Daemon:  "roster",
		Status:  "ok",
		Version: versioninfo.Short(),
	})
}

// GET /users
func (srv *Server) HandleListUsers(c echo.Context) error {
	ctx := c.Request().Context()

	all, err := srv.store.ListAll(ctx)
	if err != nil {
		srv.log.Error("failed to list users", "err", err)
		return c.JSON(http.StatusInternalServerError, GenericError{
			Error:   "InternalServerError",
			Message: "failed to list users",
		})
	}
	return c.JSON(http.StatusOK, all)
}

// GET /users/:id
func (srv *Server) HandleGetUser(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, GenericError{
			Error:   "InvalidUserId",
			Message: err.Error(),
		})
	}

	u, err := srv.store.GetByID(ctx, id)
	if err != nil {
		srv.log.Error("failed to fetch user", "id", id, "err", err)
		return c.JSON(http.StatusInternalServerError, GenericError{
			Error:   "InternalServerError",
			Message: "failed to fetch user",
		})
	}
	if u == nil {
		return c.JSON(http.StatusNotFound, GenericError{
			Error:   "UserNotFound",
			Message: fmt.Sprintf("no user with id: %s", id),
		})
	}
	return c.JSON(http.StatusOK, u)
}

// POST /users
func (srv *Server) HandleCreateUser(c echo.Context) error {
	ctx := c.Request().Context()

	var params users.CreateUserParams
	if err := c.Bind(&params); err != nil {
		return c.JSON(http.StatusBadRequest, GenericError{
			Error:   "BadRequest",
			Message: err.Error(),
		})
	}
	if err := validateCreateParams(params); err != nil {
		return c.JSON(http.StatusBadRequest, GenericError{
			Error:   "InvalidUser",
			Message: err.Error(),
		})
	}

	u, err := srv.store.Create(ctx, params)
	if err != nil && errors.Is(err, users.ErrEmailTaken) {
		return c.JSON(http.StatusConflict, GenericError{
			Error:   "EmailTaken",
			Message: err.Error(),
		})
	} else if err != nil {
		srv.log.Error("failed to create user", "err", err)
		return c.JSON(http.StatusInternalServerError, GenericError{
			Error:   "InternalServerError",
			Message: "failed to create user",
		})
	}
	return c.JSON(http.StatusCreated, u)
}

// PUT /users/:id
func (srv *Server) HandleUpdateUser(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, GenericError{
			Error:   "InvalidUserId",
			Message: err.Error(),
		})
	}

	var params users.UpdateUserParams
	if err := c.Bind(&params); err != nil {
		return c.JSON(http.StatusBadRequest, GenericError{
			Error:   "BadRequest",
			Message: err.Error(),
		})
	}
	if err := validateUpdateParams(params); err != nil {
		return c.JSON(http.StatusBadRequest, GenericError{
			Error:   "InvalidUser",
			Message: err.Error(),
		})
	}

	u, err := srv.store.Update(ctx, id, params)
	if err != nil && errors.Is(err, users.ErrEmailTaken) {
		return c.JSON(http.StatusConflict, GenericError{
			Error:   "EmailTaken",
			Message: err.Error(),
		})
	} else if err != nil {
		srv.log.Error("failed to update user", "id", id, "err", err)
		return c.JSON(http.StatusInternalServerError, GenericError{
			Error:   "InternalServerError",
			Message: "failed to update user",
		})
	}
	if u == nil {
		return c.JSON(http.StatusNotFound, GenericError{
			Error:   "UserNotFound",
			Message: fmt.Sprintf("no user with id: %s", id),
		})
	}
	return c.JSON(http.StatusOK, u)
}

// DELETE /users/:id
func (srv *Server) HandleDeleteUser(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, GenericError{
			Error:   "InvalidUserId",
			Message: err.Error(),
		})
	}

	found, err := srv.store.Delete(ctx, id)
	if err != nil {
		srv.log.Error("failed to delete user", "id", id, "err", err)
		return c.JSON(http.StatusInternalServerError, GenericError{
			Error:   "InternalServerError",
			Message: "failed to delete user",
		})
	}
	if !found {
		return c.JSON(http.StatusNotFound, GenericError{
			Error:   "UserNotFound",
			Message: fmt.Sprintf("no user with id: %s", id),
		})
	}
	return c.NoContent(http.StatusNoContent)
}

// POST /users/:id/refresh
//
// Forces the cache entry for one user back in sync with the store, for when
// out-of-band writes have left it stale.
func (srv *Server) HandleRefreshUser(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, GenericError{
			Error:   "InvalidUserId",
			Message: err.Error(),
		})
	}

	u, err := srv.store.RefreshEntry(ctx, id)
	if err != nil {
		srv.log.Error("failed to refresh user", "id", id, "err", err)
		return c.JSON(http.StatusInternalServerError, GenericError{
			Error:   "InternalServerError",
			Message: "failed to refresh user",
		})
	}
	if u == nil {
		return c.JSON(http.StatusNotFound, GenericError{
			Error:   "UserNotFound",
			Message: fmt.Sprintf("no user with id: %s", id),
		})
	}
	return c.JSON(http.StatusOK, u)
}

// POST /cache/invalidate
func (srv *Server) HandleInvalidateCache(c echo.Context) error {
	srv.store.InvalidateCache()
	srv.log.Info("user cache invalidated")
	return c.JSON(http.StatusOK, GenericStatus{Daemon: "roster", Status: "ok"})
}

func validateEmail(email string) error {
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("invalid email address: %w", err)
	}
	return nil
}

func validateCreateParams(params users.CreateUserParams) error {
	if params.Name == "" {
		return fmt.Errorf("name must not be empty")
	}
	if params.Email == "" {
		return fmt.Errorf("email must not be empty")
	}
	if err := validateEmail(params.Email); err != nil {
		return err
	}
	if params.Age != nil && *params.Age < 0 {
		return fmt.Errorf("age must not be negative")
	}
	return nil
}

func validateUpdateParams(params users.UpdateUserParams) error {
	if params.Email != nil && *params.Email != "" {
		if err := validateEmail(*params.Email); err != nil {
			return err
		}
	}
	if params.Age != nil && *params.Age < 0 {
		return fmt.Errorf("age must not be negative")
	}
	return nil
}
