package echoapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/course"
	"github.com/trezcool/academia/core/user"
)

const contextUserKey = "user"

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64  `json:"oriat,omitempty"`
	Username     string `json:"username,omitempty"`
	Email        string `json:"email,omitempty"`
	Role         string `json:"role,omitempty"`
	IsStaff      bool   `json:"is_staff,omitempty"`
}

func (c Claims) userID() (int, error) {
	return strconv.Atoi(c.Subject)
}

type authenticator struct {
	jwtConfig         middleware.JWTConfig
	users             user.ServiceInterface
	courses           course.ServiceInterface
	appName           string
	expiration        time.Duration
	refreshExpiration time.Duration
}

func newAuthenticator(conf *core.Config, users user.ServiceInterface, courses course.ServiceInterface) *authenticator {
	return &authenticator{
		jwtConfig: middleware.JWTConfig{
			SigningKey:    []byte(conf.SecretKey),
			SigningMethod: middleware.AlgorithmHS256,
			ContextKey:    "userToken",
			Claims:        new(Claims),
		},
		users:             users,
		courses:           courses,
		appName:           conf.AppName,
		expiration:        conf.Server.JWTExpirationDelta,
		refreshExpiration: conf.Server.JWTRefreshExpirationDelta,
	}
}

func (a *authenticator) newClaims(usr user.User, origIat ...int64) *Claims {
	now := time.Now()
	nownix := now.Unix()

	oriat := nownix
	if len(origIat) > 0 {
		oriat = origIat[0]
	}

	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    a.appName,
			Subject:   strconv.Itoa(usr.ID),
			Audience:  a.appName,
			ExpiresAt: now.Add(a.expiration).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt: oriat,
		Username:     usr.Username,
		Email:        usr.Email,
		Role:         usr.Role,
		IsStaff:      usr.IsStaff,
	}
}

// generateToken generates a signed JWT token string representing the user Claims.
func (a *authenticator) generateToken(claims *Claims) (string, error) {
	method := jwt.GetSigningMethod(a.jwtConfig.SigningMethod)
	token := jwt.NewWithClaims(method, claims)

	ss, err := token.SignedString(a.jwtConfig.SigningKey)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func (a *authenticator) authenticate(ctx context.Context, uname, pwd string) (user.User, error) {
	usr, err := a.users.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, errAuthenticationFailed
		}
		return user.User{}, errors.Wrap(err, "finding user by username or email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return user.User{}, errAuthenticationFailed
	}
	if !usr.IsActive {
		return user.User{}, errAccountDeactivated
	}
	usr, err = a.users.SetLastLogin(ctx, usr)
	return usr, errors.Wrap(err, "setting lastLogin")
}

func (a *authenticator) claims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(a.jwtConfig.ContextKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

// contextUser loads the authenticated User once per request.
func (a *authenticator) contextUser(ctx echo.Context) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}

	claims, err := a.claims(ctx)
	if err != nil {
		return user.User{}, err
	}
	id, err := claims.userID()
	if err != nil {
		return user.User{}, errUnauthorized
	}

	usr, err := a.users.GetByID(ctx.Request().Context(), id)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, errUnauthorized
		}
		return user.User{}, errors.Wrap(err, "finding user by ID")
	}
	ctx.Set(contextUserKey, usr)
	return usr, nil
}

func (a *authenticator) refresh(ctx echo.Context) (string, user.User, error) {
	claims, err := a.claims(ctx)
	if err != nil {
		return "", user.User{}, err
	}
	usr, err := a.contextUser(ctx)
	if err != nil {
		return "", user.User{}, errors.Wrap(err, "getting context user")
	}

	// check if user is still active
	if !usr.IsActive {
		return "", user.User{}, errAccountDeactivated
	}

	// check if refresh has not expired
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(a.refreshExpiration)
	if time.Now().After(expTime) {
		return "", user.User{}, errRefreshExpired
	}

	token, err := a.generateToken(a.newClaims(usr, claims.OrigIssuedAt))
	return token, usr, errors.Wrap(err, "generating token")
}

func (a *authenticator) loginResponse(ctx context.Context, token string, usr user.User) (LoginResponse, error) {
	courseIDs, err := a.courses.UserCourseIDs(ctx, usr.ID)
	if err != nil {
		return LoginResponse{}, errors.Wrap(err, "listing user courses")
	}
	if courseIDs == nil {
		courseIDs = []int{}
	}
	return LoginResponse{
		Token: token,
		User: LoginUser{
			ID:       usr.ID,
			Username: usr.Username,
			Role:     usr.Role,
			IsStaff:  usr.IsStaff,
			Courses:  courseIDs,
		},
	}, nil
}

type authApi struct {
	auth     *authenticator
	validate *validator.Validate
}

func registerAuthAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, validate *validator.Validate) {
	api := authApi{auth: auth, validate: validate}

	ag := g.Group("/auth")
	ag.POST("/login", api.login)
	ag.POST("/refresh", api.refreshToken, jwt)
}

func (api *authApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.auth.authenticate(ctx.Request().Context(), data.Username, data.Password)
	if err != nil {
		return err
	}
	token, err := api.auth.generateToken(api.auth.newClaims(usr))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}

	resp, err := api.auth.loginResponse(ctx.Request().Context(), token, usr)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *authApi) refreshToken(ctx echo.Context) error {
	token, usr, err := api.auth.refresh(ctx)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	resp, err := api.auth.loginResponse(ctx.Request().Context(), token, usr)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, resp)
}

type (
	LoginRequest struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	LoginUser struct {
		ID       int    `json:"id"`
		Username string `json:"username"`
		Role     string `json:"role"`
		IsStaff  bool   `json:"is_staff"`
		Courses  []int  `json:"courses"`
	}

	LoginResponse struct {
		Token string    `json:"token"`
		User  LoginUser `json:"user"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Username = core.CleanString(lr.Username, true /* lower */)
	return validate.Struct(lr)
}
