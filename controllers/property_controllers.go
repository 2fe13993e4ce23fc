package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yashpalsanam/foresite-sub001/media"
	"github.com/yashpalsanam/foresite-sub001/middlewares"
	"github.com/yashpalsanam/foresite-sub001/services"
	"github.com/yashpalsanam/foresite-sub001/utils"
)

type PropertyController struct {
	properties *services.PropertyService
}

func NewPropertyController(properties *services.PropertyService) *PropertyController {
	return &PropertyController{properties: properties}
}

// ListProperties -> filtered, paginated listing
func (pc *PropertyController) ListProperties(c *gin.Context) {
	var filter services.PropertyFilter
	if err := utils.BindQuery(c, &filter); err != nil {
		utils.HandleError(c, err)
		return
	}
	page := utils.ParsePage(c)
	props, total, err := pc.properties.List(c.Request.Context(), filter, page, middlewares.CurrentActor(c))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.RespondPaginated(c, "Properties", props, page, total)
}

func (pc *PropertyController) GetProperty(c *gin.Context) {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	viewer := services.ViewerInfo{IP: c.ClientIP(), UserAgent: c.Request.UserAgent()}
	prop, err := pc.properties.GetByID(c.Request.Context(), id, middlewares.CurrentActor(c), viewer)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Property", prop)
}

func (pc *PropertyController) CreateProperty(c *gin.Context) {
	var in services.PropertyInput
	if err := utils.BindJSON(c, &in); err != nil {
		utils.HandleError(c, err)
		return
	}
	prop, err := pc.properties.Create(c.Request.Context(), in, middlewares.CurrentActor(c))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Property created", prop)
}

func (pc *PropertyController) UpdateProperty(c *gin.Context) {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	var in services.PropertyUpdateInput
	if err := utils.BindJSON(c, &in); err != nil {
		utils.HandleError(c, err)
		return
	}
	prop, err := pc.properties.Update(c.Request.Context(), id, in, middlewares.CurrentActor(c))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Property updated", prop)
}

func (pc *PropertyController) DeleteProperty(c *gin.Context) {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	if err := pc.properties.Delete(c.Request.Context(), id, middlewares.CurrentActor(c)); err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Property deleted", nil)
}

// UploadImages expects multipart field "images" (repeatable) and an optional primary_index.
func (pc *PropertyController) UploadImages(c *gin.Context) {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	limitBody(c, media.MaxFilesPerUpload)
	form, err := c.MultipartForm()
	if err != nil {
		if tooLarge(err) {
			utils.HandleError(c, bodyTooLarge("images", media.MaxFilesPerUpload))
			return
		}
		utils.HandleError(c, utils.ValidationError("expected a multipart form", utils.FieldError{Field: "images", Message: "is required"}))
		return
	}

	var primary *int
	if raw := c.PostForm("primary_index"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			utils.HandleError(c, utils.ValidationError("validation failed", utils.FieldError{Field: "primary_index", Message: "must be an integer"}))
			return
		}
		primary = &n
	}

	prop, err := pc.properties.UploadImages(c.Request.Context(), id, form.File["images"], primary, middlewares.CurrentActor(c))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Images uploaded", prop)
}

func (pc *PropertyController) SetPrimaryImage(c *gin.Context) {
	id, imageID, err := propertyAndImageIDs(c)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	prop, err := pc.properties.SetPrimaryImage(c.Request.Context(), id, imageID, middlewares.CurrentActor(c))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Primary image updated", prop)
}

func (pc *PropertyController) DeleteImage(c *gin.Context) {
	id, imageID, err := propertyAndImageIDs(c)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	prop, err := pc.properties.DeleteImage(c.Request.Context(), id, imageID, middlewares.CurrentActor(c))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Image deleted", prop)
}

func propertyAndImageIDs(c *gin.Context) (uint, uint, error) {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		return 0, 0, err
	}
	imageID, err := utils.ParseID(c, "imageId")
	if err != nil {
		return 0, 0, err
	}
	return id, imageID, nil
}

// Nearby -> ?lat=&lng=&radius=&limit=&type=
func (pc *PropertyController) Nearby(c *gin.Context) {
	var q services.NearbyQuery
	if err := utils.BindQuery(c, &q); err != nil {
		utils.HandleError(c, err)
		return
	}
	props, err := pc.properties.Nearby(c.Request.Context(), q)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Nearby properties", props)
}

func (pc *PropertyController) Featured(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			utils.HandleError(c, utils.ValidationError("validation failed", utils.FieldError{Field: "limit", Message: "must be an integer"}))
			return
		}
		limit = n
	}
	props, err := pc.properties.Featured(c.Request.Context(), limit)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Featured properties", props)
}

func (pc *PropertyController) Stats(c *gin.Context) {
	if !middlewares.CurrentActor(c).IsAdmin() {
		utils.HandleError(c, utils.Forbidden(errors.New("admin role required")))
		return
	}
	stats, err := pc.properties.Stats(c.Request.Context())
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Property statistics", stats)
}
