// app/echoServer/jwtx/user.go
package jwtx

import (
	"errors"

	"github.com/labstack/echo/v4"

	"github.com/callogan/library-service-api/model"
)

// RequesterFromContext reads the identity the auth middleware stored on the
// request.
func RequesterFromContext(c echo.Context) (model.Requester, error) {
	uid, ok := c.Get("user_id").(int64)
	if !ok || uid == 0 {
		return model.Requester{}, errors.New("no user in context")
	}
	role, _ := c.Get("role").(string)
	return model.Requester{UserID: uid, Privileged: role == model.RoleAdmin}, nil
}
