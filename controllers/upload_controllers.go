package controllers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/yashpalsanam/foresite-sub001/media"
	"github.com/yashpalsanam/foresite-sub001/middlewares"
	"github.com/yashpalsanam/foresite-sub001/utils"
)

type UploadController struct {
	storage media.Storage
}

func NewUploadController(storage media.Storage) *UploadController {
	return &UploadController{storage: storage}
}

// Upload stores a single file from multipart field "file".
func (uc *UploadController) Upload(c *gin.Context) {
	limitBody(c, 1)
	fh, err := c.FormFile("file")
	if err != nil {
		if tooLarge(err) {
			utils.HandleError(c, bodyTooLarge("file", 1))
			return
		}
		utils.HandleError(c, utils.ValidationError("validation failed", utils.FieldError{Field: "file", Message: "is required"}))
		return
	}

	mime, err := media.Validate(fh, media.AllUploadTypes)
	if err != nil {
		var fe *media.FileError
		if errors.As(err, &fe) {
			utils.HandleError(c, utils.ValidationError("file was rejected", utils.FieldError{Field: "file", Message: fe.Error()}))
			return
		}
		utils.HandleError(c, utils.Internal(err))
		return
	}

	f, err := fh.Open()
	if err != nil {
		utils.HandleError(c, utils.Internal(err))
		return
	}
	defer f.Close()

	url, err := uc.storage.Save(c.Request.Context(), fh.Filename, f)
	if err != nil {
		utils.HandleError(c, utils.Upstream("media storage", err))
		return
	}

	utils.InfoLogger.WithFields(logrus.Fields{
		"user_id": middlewares.CurrentActor(c).UserID,
		"mime":    mime,
		"size":    fh.Size,
	}).Info("File uploaded")

	utils.RespondJSON(c, http.StatusCreated, "File uploaded", gin.H{
		"url":       url,
		"filename":  fh.Filename,
		"mime_type": mime,
		"size":      fh.Size,
	})
}

// limitBody caps the request body so oversized uploads fail while the form is parsed
// instead of after they have been spooled to disk.
func limitBody(c *gin.Context, files int) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, media.RequestLimit(files))
}

func tooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

func bodyTooLarge(field string, files int) error {
	return utils.ValidationError("request body too large", utils.FieldError{
		Field:   field,
		Message: fmt.Sprintf("upload exceeds %d bytes", media.RequestLimit(files)),
	})
}
