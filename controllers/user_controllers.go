package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yashpalsanam/foresite-sub001/middlewares"
	"github.com/yashpalsanam/foresite-sub001/services"
	"github.com/yashpalsanam/foresite-sub001/utils"
)

// UserController is the admin-only account management API.
type UserController struct {
	users *services.UserService
}

func NewUserController(users *services.UserService) *UserController {
	return &UserController{users: users}
}

func (uc *UserController) ListUsers(c *gin.Context) {
	var filter services.UserFilter
	if err := utils.BindQuery(c, &filter); err != nil {
		utils.HandleError(c, err)
		return
	}
	page := utils.ParsePage(c)
	users, total, err := uc.users.List(c.Request.Context(), filter, page)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.RespondPaginated(c, "Users", users, page, total)
}

func (uc *UserController) GetUser(c *gin.Context) {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	user, err := uc.users.Get(c.Request.Context(), id)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "User", user)
}

func (uc *UserController) CreateUser(c *gin.Context) {
	var in services.UserCreateInput
	if err := utils.DecodeJSON(c, &in); err != nil {
		utils.HandleError(c, err)
		return
	}
	user, err := uc.users.Create(c.Request.Context(), in)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "User created", user)
}

func (uc *UserController) UpdateUser(c *gin.Context) {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	var in services.UserUpdateInput
	if err := utils.BindJSON(c, &in); err != nil {
		utils.HandleError(c, err)
		return
	}
	user, err := uc.users.Update(c.Request.Context(), id, in, middlewares.CurrentActor(c))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "User updated", user)
}

func (uc *UserController) DeleteUser(c *gin.Context) {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	if err := uc.users.Delete(c.Request.Context(), id, middlewares.CurrentActor(c)); err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "User deleted", nil)
}
