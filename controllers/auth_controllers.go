package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yashpalsanam/foresite-sub001/middlewares"
	"github.com/yashpalsanam/foresite-sub001/services"
	"github.com/yashpalsanam/foresite-sub001/utils"
)

type AuthController struct {
	users *services.UserService
}

func NewAuthController(users *services.UserService) *AuthController {
	return &AuthController{users: users}
}

// Register creates a plain user account and signs it in.
func (ac *AuthController) Register(c *gin.Context) {
	var in services.RegisterInput
	if err := utils.DecodeJSON(c, &in); err != nil {
		utils.HandleError(c, err)
		return
	}
	session, err := ac.users.Register(c.Request.Context(), in)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "User registered", session)
}

// Login -> JWT
func (ac *AuthController) Login(c *gin.Context) {
	var in services.LoginInput
	if err := utils.DecodeJSON(c, &in); err != nil {
		utils.HandleError(c, err)
		return
	}
	session, err := ac.users.Login(c.Request.Context(), in)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Login successful", session)
}

func (ac *AuthController) Me(c *gin.Context) {
	user, err := ac.users.Get(c.Request.Context(), middlewares.CurrentActor(c).UserID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Current user", user)
}

func (ac *AuthController) ChangePassword(c *gin.Context) {
	var in services.ChangePasswordInput
	if err := utils.BindJSON(c, &in); err != nil {
		utils.HandleError(c, err)
		return
	}
	if err := ac.users.ChangePassword(c.Request.Context(), middlewares.CurrentActor(c).UserID, in); err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Password updated", nil)
}
