package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yashpalsanam/foresite-sub001/middlewares"
	"github.com/yashpalsanam/foresite-sub001/models"
	"github.com/yashpalsanam/foresite-sub001/services"
	"github.com/yashpalsanam/foresite-sub001/utils"
)

type InquiryController struct {
	inquiries *services.InquiryService
}

func NewInquiryController(inquiries *services.InquiryService) *InquiryController {
	return &InquiryController{inquiries: inquiries}
}

// CreateInquiry accepts both visitors and signed-in users.
func (ic *InquiryController) CreateInquiry(c *gin.Context) {
	var in services.InquiryInput
	if err := utils.BindJSON(c, &in); err != nil {
		utils.HandleError(c, err)
		return
	}

	var (
		inq *models.Inquiry
		err error
	)
	if actor := middlewares.CurrentActor(c); actor != nil {
		inq, err = ic.inquiries.Create(c.Request.Context(), in, actor)
	} else {
		inq, err = ic.inquiries.CreatePublic(c.Request.Context(), in)
	}
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Inquiry submitted", inq)
}

func (ic *InquiryController) ListInquiries(c *gin.Context) {
	var filter services.InquiryFilter
	if err := utils.BindQuery(c, &filter); err != nil {
		utils.HandleError(c, err)
		return
	}
	page := utils.ParsePage(c)
	inquiries, total, err := ic.inquiries.List(c.Request.Context(), filter, page, middlewares.CurrentActor(c))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.RespondPaginated(c, "Inquiries", inquiries, page, total)
}

func (ic *InquiryController) MyInquiries(c *gin.Context) {
	page := utils.ParsePage(c)
	inquiries, total, err := ic.inquiries.MyInquiries(c.Request.Context(), page, middlewares.CurrentActor(c))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.RespondPaginated(c, "My inquiries", inquiries, page, total)
}

func (ic *InquiryController) GetInquiry(c *gin.Context) {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	inq, err := ic.inquiries.GetByID(c.Request.Context(), id, middlewares.CurrentActor(c))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Inquiry", inq)
}

func (ic *InquiryController) UpdateInquiry(c *gin.Context) {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	var in services.InquiryUpdateInput
	if err := utils.BindJSON(c, &in); err != nil {
		utils.HandleError(c, err)
		return
	}
	inq, err := ic.inquiries.Update(c.Request.Context(), id, in, middlewares.CurrentActor(c))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Inquiry updated", inq)
}

func (ic *InquiryController) DeleteInquiry(c *gin.Context) {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	if err := ic.inquiries.Delete(c.Request.Context(), id, middlewares.CurrentActor(c)); err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Inquiry deleted", nil)
}

func (ic *InquiryController) Stats(c *gin.Context) {
	stats, err := ic.inquiries.Stats(c.Request.Context(), middlewares.CurrentActor(c))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Inquiry statistics", stats)
}
