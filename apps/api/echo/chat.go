package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/chat"
)

type chatApi struct {
	auth     *authenticator
	svc      chat.ServiceInterface
	validate *validator.Validate
}

func registerChatAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	auth *authenticator,
	svc chat.ServiceInterface,
	validate *validator.Validate,
) {
	api := chatApi{auth: auth, svc: svc, validate: validate}
	staff := staffMiddleware(auth)

	cg := g.Group("/chat", jwt)
	cg.GET("", api.query)
	cg.POST("", api.create, staff)

	dg := cg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, staff)
	dg.DELETE("", api.destroy, staff)
	dg.POST("/add-participant", api.addParticipant, staff)
	dg.POST("/remove-participant", api.removeParticipant, staff)
	dg.GET("/messages", api.messages)
	dg.POST("/messages", api.sendMessage)
}

func (api *chatApi) query(ctx echo.Context) error {
	var filter chat.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []chat.Chat{})
	}

	claims, err := api.auth.claims(ctx)
	if err != nil {
		return err
	}
	// non-staff users only see the chats they participate in
	if !claims.IsStaff {
		if filter.ParticipantID, err = claims.userID(); err != nil {
			return errUnauthorized
		}
	}

	chats, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying chats")
	}
	if chats == nil {
		chats = []chat.Chat{}
	}
	return ctx.JSON(http.StatusOK, chats)
}

func (api *chatApi) create(ctx echo.Context) error {
	var data chat.NewChat
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewChat")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating chat")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *chatApi) retrieve(ctx echo.Context) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}
	claims, err := api.auth.claims(ctx)
	if err != nil {
		return err
	}

	c, err := api.svc.Get(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting chat")
	}
	if !claims.IsStaff {
		userID, _ := claims.userID()
		if !core.ContainsID(c.ParticipantIDs(), userID) {
			return errHttpNotFound
		}
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *chatApi) update(ctx echo.Context) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}
	var data chat.UpdateChat
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateChat")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.svc.Update(ctx.Request().Context(), id, data)
	if err != nil {
		return errors.Wrap(err, "updating chat")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *chatApi) destroy(ctx echo.Context) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting chat")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *chatApi) addParticipant(ctx echo.Context) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}
	userID, err := intQueryParam(ctx, "user_id")
	if err != nil {
		return err
	}

	p, err := api.svc.AddParticipant(ctx.Request().Context(), id, userID)
	if err != nil {
		return errors.Wrap(err, "adding participant")
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (api *chatApi) removeParticipant(ctx echo.Context) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}
	userID, err := intQueryParam(ctx, "user_id")
	if err != nil {
		return err
	}

	if err = api.svc.RemoveParticipant(ctx.Request().Context(), id, userID); err != nil {
		return errors.Wrap(err, "removing participant")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// checkAccess lets staff and the participants of the chat through.
func (api *chatApi) checkAccess(ctx echo.Context, chatID int) (Claims, int, error) {
	claims, err := api.auth.claims(ctx)
	if err != nil {
		return Claims{}, 0, err
	}
	userID, err := claims.userID()
	if err != nil {
		return Claims{}, 0, errUnauthorized
	}

	if _, err = api.svc.Get(ctx.Request().Context(), chatID); err != nil {
		return Claims{}, 0, errors.Wrap(err, "getting chat")
	}
	if claims.IsStaff {
		return claims, userID, nil
	}
	ok, err := api.svc.IsParticipant(ctx.Request().Context(), chatID, userID)
	if err != nil {
		return Claims{}, 0, errors.Wrap(err, "checking participant")
	}
	if !ok {
		return Claims{}, 0, chat.ErrNotParticipant
	}
	return claims, userID, nil
}

func (api *chatApi) messages(ctx echo.Context) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}
	if _, _, err = api.checkAccess(ctx, id); err != nil {
		return err
	}

	var filter chat.MessageFilter
	if err = ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to MessageFilter")
	}
	filter.ChatID = id

	msgs, err := api.svc.Messages(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "listing messages")
	}
	if msgs == nil {
		msgs = []chat.Message{}
	}
	return ctx.JSON(http.StatusOK, msgs)
}

func (api *chatApi) sendMessage(ctx echo.Context) error {
	id, err := intParam(ctx, "id")
	if err != nil {
		return err
	}
	claims, userID, err := api.checkAccess(ctx, id)
	if err != nil {
		return err
	}

	var data chat.NewMessage
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMessage")
	}
	data.ChatID = id
	data.SenderID = userID
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	msg, err := api.svc.SendMessage(ctx.Request().Context(), data, claims.IsStaff)
	if err != nil {
		return errors.Wrap(err, "sending message")
	}
	return ctx.JSON(http.StatusCreated, msg)
}
