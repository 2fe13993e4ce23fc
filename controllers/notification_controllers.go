package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yashpalsanam/foresite-sub001/middlewares"
	"github.com/yashpalsanam/foresite-sub001/realtime"
	"github.com/yashpalsanam/foresite-sub001/services"
	"github.com/yashpalsanam/foresite-sub001/utils"
)

type NotificationController struct {
	notifications *services.NotificationService
	hub           *realtime.Hub
}

func NewNotificationController(notifications *services.NotificationService, hub *realtime.Hub) *NotificationController {
	return &NotificationController{notifications: notifications, hub: hub}
}

// ListNotifications -> own notifications, ?unread=true for unread only
func (nc *NotificationController) ListNotifications(c *gin.Context) {
	page := utils.ParsePage(c)
	userID := middlewares.CurrentActor(c).UserID
	notifs, total, err := nc.notifications.List(c.Request.Context(), userID, c.Query("unread") == "true", page)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.RespondPaginated(c, "Notifications", notifs, page, total)
}

func (nc *NotificationController) UnreadCount(c *gin.Context) {
	count, err := nc.notifications.UnreadCount(c.Request.Context(), middlewares.CurrentActor(c).UserID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Unread notifications", gin.H{"count": count})
}

func (nc *NotificationController) MarkRead(c *gin.Context) {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	notif, err := nc.notifications.MarkRead(c.Request.Context(), middlewares.CurrentActor(c).UserID, id)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Notification marked as read", notif)
}

func (nc *NotificationController) MarkAllRead(c *gin.Context) {
	updated, err := nc.notifications.MarkAllRead(c.Request.Context(), middlewares.CurrentActor(c).UserID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "All notifications marked as read", gin.H{"updated": updated})
}

func (nc *NotificationController) DeleteNotification(c *gin.Context) {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	if err := nc.notifications.Delete(c.Request.Context(), middlewares.CurrentActor(c).UserID, id); err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Notification deleted", nil)
}

// CreateNotification -> admin broadcast to one user, a role, or everyone
func (nc *NotificationController) CreateNotification(c *gin.Context) {
	var in services.SystemNotificationInput
	if err := utils.BindJSON(c, &in); err != nil {
		utils.HandleError(c, err)
		return
	}
	sent, err := nc.notifications.SendSystem(c.Request.Context(), in)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Notification sent", gin.H{"recipients": sent})
}

// Stream upgrades to a websocket that receives the caller's notifications live.
func (nc *NotificationController) Stream(c *gin.Context) {
	userID := middlewares.CurrentActor(c).UserID
	if err := nc.hub.Serve(c.Writer, c.Request, userID); err != nil {
		utils.ErrorLogger.WithField("user_id", userID).WithError(err).Warn("Websocket session ended with error")
	}
}
