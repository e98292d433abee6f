package echoServer

import (
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"

	authctrl "github.com/callogan/library-service-api/app/echoServer/controller/auth"
	bookctrl "github.com/callogan/library-service-api/app/echoServer/controller/book"
	borrowctrl "github.com/callogan/library-service-api/app/echoServer/controller/borrowing"
	paymentctrl "github.com/callogan/library-service-api/app/echoServer/controller/payment"
	"github.com/callogan/library-service-api/model"
)

type C struct {
	Auth      *authctrl.Controller
	Book      *bookctrl.Controller
	Borrowing *borrowctrl.Controller
	Payment   *paymentctrl.Controller
	JWTSecret string
}

func Register(e *echo.Echo, c C) {
	// Public
	pub := e.Group("/v1")
	pub.POST("/users/register", c.Auth.Register)
	pub.POST("/users/login", c.Auth.Login)

	// Provider redirect targets; the browser arrives here without a token.
	pub.GET("/payments/success", c.Payment.Success)
	pub.GET("/payments/cancel", c.Payment.Cancel)

	// Auth
	auth := e.Group("/v1")
	auth.Use(echojwt.WithConfig(echojwt.Config{
		SigningKey: []byte(c.JWTSecret),

		NewClaimsFunc: func(c echo.Context) jwt.Claims { return jwt.MapClaims{} },
		TokenLookup:   "header:Authorization:Bearer ",
	}))
	auth.Use(extractIdentity)

	// Books
	auth.GET("/books", c.Book.List)
	auth.GET("/books/:id", c.Book.Detail)
	// Admin endpoints
	auth.POST("/books", c.Book.Create, requireAdmin)
	auth.POST("/books/:id/inventory", c.Book.AddInventory, requireAdmin)

	// Borrowings
	auth.POST("/borrowings", c.Borrowing.Create)
	auth.GET("/borrowings", c.Borrowing.List)
	auth.GET("/borrowings/:id", c.Borrowing.Detail)
	auth.POST("/borrowings/:id/return", c.Borrowing.Return)

	// Payments
	auth.GET("/payments", c.Payment.List)
	auth.GET("/payments/:id", c.Payment.Detail)
	auth.POST("/payments/:id/recreate", c.Payment.Recreate)
	auth.POST("/payments/open", c.Payment.Open, requireAdmin)
}

func extractIdentity(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		tokenObj := ctx.Get("user")
		if tokenObj == nil {
			return ctx.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
		}

		claims, ok := tokenObj.(jwt.MapClaims)
		if !ok {
			if tok, tokOK := tokenObj.(*jwt.Token); tokOK {
				claims, ok = tok.Claims.(jwt.MapClaims)
			}
		}
		if !ok {
			return ctx.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
		}

		sub, ok := claims["sub"].(float64)
		if !ok {
			return ctx.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
		}

		ctx.Set("user_id", int64(sub))
		if role, ok := claims["role"].(string); ok {
			ctx.Set("role", role)
		}
		return next(ctx)
	}
}

func requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if role, _ := ctx.Get("role").(string); role != model.RoleAdmin {
			return ctx.JSON(http.StatusForbidden, echo.Map{"message": "forbidden"})
		}
		return next(ctx)
	}
}
