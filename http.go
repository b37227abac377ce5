package identity

import (
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"

	"github.com/goliatone/go-identity/middleware/tokenware"
)

// RouteRegistrar captures the router methods used by the controller.
type RouteRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Put(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Delete(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// HTTPController exposes the core over HTTP: login and renewal are open,
// the management surface sits behind the group-gated token middleware.
// It owns nothing but the mapping between results and status codes.
type HTTPController struct {
	Debug        bool
	Logger       Logger
	ErrorHandler func(router.Context, error) error

	auther     Authenticator
	authorizer *Authorizer
	store      Store
	cfg        Config

	// AdminGroups gate the management routes.
	AdminGroups []string
}

type HTTPControllerOption func(*HTTPController) *HTTPController

func WithHTTPLogger(l Logger) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.Logger = l
		return c
	}
}

func WithAdminGroups(groups ...string) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.AdminGroups = groups
		return c
	}
}

func WithHTTPDebug(debug bool) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.Debug = debug
		return c
	}
}

// NewHTTPController creates the controller. The authorizer should carry a
// GroupLookup built from the same store so stale tokens keep working after
// membership changes.
func NewHTTPController(auther Authenticator, authorizer *Authorizer, store Store, cfg Config, opts ...HTTPControllerOption) *HTTPController {
	c := &HTTPController{
		Logger:      defLogger{},
		auther:      auther,
		authorizer:  authorizer,
		store:       store,
		cfg:         cfg,
		AdminGroups: []string{cfg.GetDefaultGroup()},
	}

	c.ErrorHandler = c.defaultErrHandler

	for _, opt := range opts {
		if opt != nil {
			c = opt(c)
		}
	}

	return c
}

// RegisterRoutes wires the route table onto the given registrar.
func (c *HTTPController) RegisterRoutes(api RouteRegistrar) {
	guard := c.AdminGuard()

	api.Post("/login", c.LoginPost)
	api.Post("/renew", c.RenewPost)

	api.Get("/me", c.ShowSelf, c.SessionGuard())

	api.Get("/users", c.ListUsers, guard)
	api.Post("/users", c.CreateUser, guard)
	api.Get("/users/:username", c.ShowUser, guard)
	api.Delete("/users/:username", c.DeleteUser, guard)
	api.Post("/users/:username/rename", c.RenameUser, guard)
	api.Put("/users/:username/password", c.SetUserPassword, guard)
	api.Put("/users/:username/profile", c.SetUserProfile, guard)
	api.Put("/users/:username/groups", c.SetUserGroups, guard)
	api.Put("/users/:username/groups/:group", c.AddUserToGroup, guard)
	api.Delete("/users/:username/groups/:group", c.RemoveUserFromGroup, guard)

	api.Get("/groups", c.ListGroups, guard)
	api.Post("/groups", c.CreateGroup, guard)
	api.Delete("/groups/:name", c.DeleteGroup, guard)
}

// SessionGuard admits any bearer of a valid session token.
func (c *HTTPController) SessionGuard() router.MiddlewareFunc {
	return tokenware.New(tokenware.Config{
		ContextKey:  c.cfg.GetContextKey(),
		TokenLookup: c.cfg.GetTokenLookup(),
		AuthScheme:  c.cfg.GetAuthScheme(),
		Authorize: func(ctx router.Context, raw string) (any, error) {
			return c.authorizer.AuthorizeAny(ctx.Context(), raw)
		},
		ErrorHandler: c.ErrorHandler,
	})
}

// AdminGuard builds the middleware protecting the management routes.
func (c *HTTPController) AdminGuard() router.MiddlewareFunc {
	return tokenware.New(tokenware.Config{
		ContextKey:  c.cfg.GetContextKey(),
		TokenLookup: c.cfg.GetTokenLookup(),
		AuthScheme:  c.cfg.GetAuthScheme(),
		Authorize: func(ctx router.Context, raw string) (any, error) {
			return c.authorizer.AuthorizeGroups(ctx.Context(), raw, c.AdminGroups)
		},
		ErrorHandler: c.ErrorHandler,
	})
}

// LoginRequest payload
type LoginRequest struct {
	Username string `form:"username" json:"username"`
	Password string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

func (c *HTTPController) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)

	if err := ctx.Bind(payload); err != nil {
		return c.badRequest(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		// an unparseable login still gets the uniform outcome
		return c.ErrorHandler(ctx, ErrInvalidCredentials)
	}

	if c.Debug {
		c.Logger.Debug("login payload: %s", print.MaybePrettyJSON(payload))
	}

	result, err := c.auther.Login(ctx.Context(), payload.Username, payload.Password)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, result)
}

// RenewRequest payload
type RenewRequest struct {
	Token string `form:"token" json:"token"`
}

func (c *HTTPController) RenewPost(ctx router.Context) error {
	payload := new(RenewRequest)

	if err := ctx.Bind(payload); err != nil {
		return c.badRequest(ctx, err)
	}

	raw := payload.Token
	if raw == "" {
		// fall back to the bearer header
		extractors := tokenware.GetExtractors(c.cfg.GetTokenLookup(), c.cfg.GetAuthScheme())
		header, err := tokenware.ExtractRawToken(ctx, extractors)
		if err != nil {
			return c.badRequest(ctx, err)
		}
		raw = header
	}

	result, err := c.auther.Renew(ctx.Context(), raw)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, result)
}

// ShowSelf returns the caller's current store record, resolved through the
// claims the guard stashed in the router context.
func (c *HTTPController) ShowSelf(ctx router.Context) error {
	claims, ok := GetRouterClaims(ctx, c.cfg.GetContextKey())
	if !ok {
		return c.ErrorHandler(ctx, ErrForbidden)
	}

	user, err := c.store.GetUser(ctx.Context(), claims.Subject())
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, user)
}

func (c *HTTPController) ListUsers(ctx router.Context) error {
	users, err := c.store.GetUsers(ctx.Context())
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}
	return ctx.JSON(router.StatusOK, map[string]any{
		"users": users,
	})
}

func (c *HTTPController) ShowUser(ctx router.Context) error {
	user, err := c.store.GetUser(ctx.Context(), ctx.Param("username"))
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}
	return ctx.JSON(router.StatusOK, user)
}

// CreateUserRequest payload
type CreateUserRequest struct {
	Username string `form:"username" json:"username"`
	Password string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r CreateUserRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Password, validation.Required),
	)
}

func (c *HTTPController) CreateUser(ctx router.Context) error {
	payload := new(CreateUserRequest)

	if err := ctx.Bind(payload); err != nil {
		return c.badRequest(ctx, err)
	}
	if err := payload.Validate(); err != nil {
		return c.badRequest(ctx, err)
	}

	ok, err := c.store.AddUser(ctx.Context(), payload.Username, payload.Password)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}
	if !ok {
		return ctx.JSON(http.StatusConflict, map[string]any{
			"success": false,
			"error":   "username already exists",
		})
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"success": true,
	})
}

func (c *HTTPController) DeleteUser(ctx router.Context) error {
	ok, err := c.store.DeleteUser(ctx.Context(), ctx.Param("username"))
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}
	return ctx.JSON(router.StatusOK, map[string]any{
		"success": ok,
	})
}

// RenameUserRequest payload
type RenameUserRequest struct {
	Username string `form:"username" json:"username"`
}

func (c *HTTPController) RenameUser(ctx router.Context) error {
	payload := new(RenameUserRequest)

	if err := ctx.Bind(payload); err != nil {
		return c.badRequest(ctx, err)
	}
	if payload.Username == "" {
		return c.badRequest(ctx, errors.New("new username is required", errors.CategoryBadInput))
	}

	if err := c.store.RenameUser(ctx.Context(), ctx.Param("username"), payload.Username); err != nil {
		return c.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"success": true,
	})
}

// SetPasswordRequest payload
type SetPasswordRequest struct {
	Password string `form:"password" json:"password"`
}

func (c *HTTPController) SetUserPassword(ctx router.Context) error {
	payload := new(SetPasswordRequest)

	if err := ctx.Bind(payload); err != nil {
		return c.badRequest(ctx, err)
	}

	if err := c.store.SetUserPassword(ctx.Context(), ctx.Param("username"), payload.Password); err != nil {
		return c.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"success": true,
	})
}

// SetProfileRequest payload
type SetProfileRequest struct {
	Email     *string `form:"email" json:"email"`
	FirstName *string `form:"first_name" json:"first_name"`
	LastName  *string `form:"last_name" json:"last_name"`
}

func (c *HTTPController) SetUserProfile(ctx router.Context) error {
	payload := new(SetProfileRequest)

	if err := ctx.Bind(payload); err != nil {
		return c.badRequest(ctx, err)
	}

	username := ctx.Param("username")
	stdCtx := ctx.Context()

	if payload.Email != nil {
		if err := c.store.SetUserEmail(stdCtx, username, *payload.Email); err != nil {
			return c.ErrorHandler(ctx, err)
		}
	}
	if payload.FirstName != nil {
		if err := c.store.SetUserFirstName(stdCtx, username, *payload.FirstName); err != nil {
			return c.ErrorHandler(ctx, err)
		}
	}
	if payload.LastName != nil {
		if err := c.store.SetUserLastName(stdCtx, username, *payload.LastName); err != nil {
			return c.ErrorHandler(ctx, err)
		}
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"success": true,
	})
}

// SetGroupsRequest payload
type SetGroupsRequest struct {
	Groups []string `form:"groups" json:"groups"`
}

func (c *HTTPController) SetUserGroups(ctx router.Context) error {
	payload := new(SetGroupsRequest)

	if err := ctx.Bind(payload); err != nil {
		return c.badRequest(ctx, err)
	}

	if err := c.store.SetUserGroups(ctx.Context(), ctx.Param("username"), payload.Groups); err != nil {
		return c.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"success": true,
	})
}

func (c *HTTPController) AddUserToGroup(ctx router.Context) error {
	ok, err := c.store.AddUserToGroup(ctx.Context(), ctx.Param("username"), ctx.Param("group"))
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}
	return ctx.JSON(router.StatusOK, map[string]any{
		"success": ok,
	})
}

func (c *HTTPController) RemoveUserFromGroup(ctx router.Context) error {
	ok, err := c.store.RemoveUserFromGroup(ctx.Context(), ctx.Param("username"), ctx.Param("group"))
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}
	return ctx.JSON(router.StatusOK, map[string]any{
		"success": ok,
	})
}

func (c *HTTPController) ListGroups(ctx router.Context) error {
	groups, err := c.store.Groups(ctx.Context())
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}
	return ctx.JSON(router.StatusOK, map[string]any{
		"groups": groups,
	})
}

// CreateGroupRequest payload
type CreateGroupRequest struct {
	Name string `form:"name" json:"name"`
}

func (c *HTTPController) CreateGroup(ctx router.Context) error {
	payload := new(CreateGroupRequest)

	if err := ctx.Bind(payload); err != nil {
		return c.badRequest(ctx, err)
	}
	if payload.Name == "" {
		return c.badRequest(ctx, errors.New("group name is required", errors.CategoryBadInput))
	}

	ok, err := c.store.AddGroup(ctx.Context(), payload.Name)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}
	if !ok {
		return ctx.JSON(http.StatusConflict, map[string]any{
			"success": false,
			"error":   "group already exists",
		})
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"success": true,
	})
}

func (c *HTTPController) DeleteGroup(ctx router.Context) error {
	ok, err := c.store.DeleteGroup(ctx.Context(), ctx.Param("name"))
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}
	return ctx.JSON(router.StatusOK, map[string]any{
		"success": ok,
	})
}

func (c *HTTPController) badRequest(ctx router.Context, err error) error {
	c.Logger.Error("bad request payload", "error", err)
	return ctx.JSON(router.StatusBadRequest, map[string]any{
		"success": false,
		"error":   "invalid request payload",
	})
}

// defaultErrHandler maps rich errors onto status codes. Authentication and
// authorization causes were already collapsed upstream, so the uniform
// messages pass through as-is.
func (c *HTTPController) defaultErrHandler(ctx router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	c.Logger.Info(
		"request error",
		"error", richErr.Message,
		"category", richErr.Category,
		"details", print.MaybePrettyJSON(richErr.Metadata),
	)

	status := richErr.Code
	if status == 0 {
		status = router.StatusInternalServerError
	}

	return ctx.JSON(status, map[string]any{
		"success":   false,
		"error":     richErr.Message,
		"text_code": richErr.TextCode,
	})
}
