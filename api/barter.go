package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"agrinet/market"
	"agrinet/models"
)

type barterOfferResponse struct {
	ID               string    `json:"id"`
	OfferUserID      string    `json:"offerUserId"`
	OfferUserName    string    `json:"offerUserName"`
	ReceiverUserID   string    `json:"receiverUserId"`
	ReceiverUserName string    `json:"receiverUserName"`
	OfferCropType    string    `json:"offerCropType"`
	OfferQuantity    float64   `json:"offerQuantity"`
	ReceiverCropType string    `json:"receiverCropType"`
	ReceiverQuantity float64   `json:"receiverQuantity"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"createdAt"`
}

func newBarterOfferResponse(offer models.BarterOffer) barterOfferResponse {
	return barterOfferResponse{
		ID:               offer.ID.String(),
		OfferUserID:      offer.OfferUserID.String(),
		OfferUserName:    offer.OfferUser.Name,
		ReceiverUserID:   offer.ReceiverUserID.String(),
		ReceiverUserName: offer.ReceiverUser.Name,
		OfferCropType:    offer.OfferCropType.Name,
		OfferQuantity:    offer.OfferQuantity,
		ReceiverCropType: offer.ReceiverCropType.Name,
		ReceiverQuantity: offer.ReceiverQuantity,
		Status:           offer.Status,
		CreatedAt:        offer.CreatedAt,
	}
}

// ListBarterOffers 回傳和目前使用者有關的提案，新的在前
func (server *ServerImpl) ListBarterOffers(c *gin.Context) {
	const op = "api.ServerImpl.ListBarterOffers"

	user, err := server.currentUser(c)
	if err != nil {
		server.abortWithError(c, op, err)
		return
	}

	offers := []models.BarterOffer{}
	if err := server.db.
		Preload("OfferUser").
		Preload("ReceiverUser").
		Preload("OfferCropType").
		Preload("ReceiverCropType").
		Where("offer_user_id = ? OR receiver_user_id = ?", user.ID, user.ID).
		Order("created_at desc").
		Find(&offers).Error; err != nil {
		server.abortWithError(c, op, fmt.Errorf("[%s] Fail to query barter offers, err=%w", op, err))
		return
	}
	c.JSON(http.StatusOK, lo.Map(offers, func(o models.BarterOffer, _ int) barterOfferResponse {
		return newBarterOfferResponse(o)
	}))
}

type createBarterOfferRequest struct {
	ReceiverUserID     string  `json:"receiverUserId"`
	OfferCropTypeID    string  `json:"offerCropTypeId"`
	OfferQuantity      float64 `json:"offerQuantity"`
	ReceiverCropTypeID string  `json:"receiverCropTypeId"`
	ReceiverQuantity   float64 `json:"receiverQuantity"`
}

// CreateBarterOffer 對另一個使用者送出以物易物提案
func (server *ServerImpl) CreateBarterOffer(c *gin.Context) {
	const op = "api.ServerImpl.CreateBarterOffer"

	user, err := server.currentUser(c)
	if err != nil {
		server.abortWithError(c, op, err)
		return
	}

	request := createBarterOfferRequest{}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if errs := market.ValidateBarter(market.BarterInput{
		ReceiverUserID:     request.ReceiverUserID,
		OfferCropTypeID:    request.OfferCropTypeID,
		OfferQuantity:      request.OfferQuantity,
		ReceiverCropTypeID: request.ReceiverCropTypeID,
		ReceiverQuantity:   request.ReceiverQuantity,
	}); errs != nil {
		server.abortWithError(c, op, errs)
		return
	}

	receiverID, err := uuid.Parse(request.ReceiverUserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid receiver id"})
		return
	}
	if receiverID == user.ID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot barter with yourself"})
		return
	}
	offerCropID, err := uuid.Parse(request.OfferCropTypeID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid offered crop type id"})
		return
	}
	receiverCropID, err := uuid.Parse(request.ReceiverCropTypeID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid requested crop type id"})
		return
	}

	if err := server.db.First(&models.User{}, "id = ?", receiverID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Receiver not found"})
			return
		}
		server.abortWithError(c, op, fmt.Errorf("[%s] Fail to query receiver, err=%w", op, err))
		return
	}

	// 提案方要真的有足量的在售刊登才可以拿來交換
	var coverage float64
	err = server.db.Model(&models.Listing{}).
		Where("user_id = ? AND crop_type_id = ? AND is_active = ?", user.ID, offerCropID, true).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&coverage).Error
	if err != nil {
		server.abortWithError(c, op, fmt.Errorf("[%s] Fail to check offered crop coverage, err=%w", op, err))
		return
	}
	if coverage < request.OfferQuantity {
		c.JSON(http.StatusBadRequest, gin.H{"error": "You do not have enough of the offered crop listed"})
		return
	}

	offer := models.BarterOffer{
		OfferUserID:        user.ID,
		ReceiverUserID:     receiverID,
		OfferCropTypeID:    offerCropID,
		OfferQuantity:      request.OfferQuantity,
		ReceiverCropTypeID: receiverCropID,
		ReceiverQuantity:   request.ReceiverQuantity,
		Status:             models.StatusPending,
	}
	if err := server.db.Create(&offer).Error; err != nil {
		server.abortWithError(c, op, fmt.Errorf("[%s] Fail to create barter offer, err=%w", op, err))
		return
	}

	if err := server.db.
		Preload("OfferUser").
		Preload("ReceiverUser").
		Preload("OfferCropType").
		Preload("ReceiverCropType").
		First(&offer, "id = ?", offer.ID).Error; err != nil {
		server.abortWithError(c, op, fmt.Errorf("[%s] Fail to reload barter offer, err=%w", op, err))
		return
	}
	c.JSON(http.StatusCreated, newBarterOfferResponse(offer))
}

type decideBarterOfferRequest struct {
	Action string `json:"action"`
}

// DecideBarterOffer 接受或拒絕提案，只有接收方能決定
func (server *ServerImpl) DecideBarterOffer(c *gin.Context) {
	const op = "api.ServerImpl.DecideBarterOffer"

	user, err := server.currentUser(c)
	if err != nil {
		server.abortWithError(c, op, err)
		return
	}

	offerID, err := uuid.Parse(c.Param("offerID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid offer id"})
		return
	}
	request := decideBarterOfferRequest{}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if request.Action != "accept" && request.Action != "reject" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Action must be accept or reject"})
		return
	}

	offer := models.BarterOffer{}
	if err := server.db.First(&offer, "id = ?", offerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Barter offer not found"})
			return
		}
		server.abortWithError(c, op, fmt.Errorf("[%s] Fail to query barter offer, err=%w", op, err))
		return
	}
	if offer.ReceiverUserID != user.ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the receiver can decide this offer"})
		return
	}
	if offer.Status != models.StatusPending {
		c.JSON(http.StatusConflict, gin.H{"error": "Offer has already been decided"})
		return
	}

	status := models.StatusRejected
	if request.Action == "accept" {
		status = models.StatusAccepted
	}
	result := server.db.Model(&models.BarterOffer{}).
		Where("id = ? AND status = ?", offer.ID, models.StatusPending).
		Update("status", status)
	if result.Error != nil {
		server.abortWithError(c, op, fmt.Errorf("[%s] Fail to update barter offer, err=%w", op, result.Error))
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "Offer has already been decided"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Offer %s", status)})
}

// barterMatchLimit 是配對建議的預設數量上限
const barterMatchLimit = 10

// ListBarterMatches 用貨值平衡度推薦可交換的刊登
// 我方是目前使用者的有效刊登，對方是其他農夫的有效刊登
func (server *ServerImpl) ListBarterMatches(c *gin.Context) {
	const op = "api.ServerImpl.ListBarterMatches"

	user, err := server.currentUser(c)
	if err != nil {
		server.abortWithError(c, op, err)
		return
	}

	listings := []models.Listing{}
	if err := server.db.
		Joins("User").
		Joins("CropType").
		Where("listings.is_active = ?", true).
		Find(&listings).Error; err != nil {
		server.abortWithError(c, op, fmt.Errorf("[%s] Fail to query listings, err=%w", op, err))
		return
	}

	toBarterListing := func(l models.Listing, _ int) market.BarterListing {
		return market.BarterListing{
			ListingID: l.ID,
			OwnerID:   l.UserID,
			OwnerName: l.User.Name,
			CropType:  l.CropType.Name,
			Quantity:  l.Quantity,
			Price:     l.Price,
			Location:  l.Location,
		}
	}
	mine := lo.FilterMap(listings, func(l models.Listing, i int) (market.BarterListing, bool) {
		return toBarterListing(l, i), l.UserID == user.ID
	})
	others := lo.FilterMap(listings, func(l models.Listing, i int) (market.BarterListing, bool) {
		return toBarterListing(l, i), l.UserID != user.ID
	})

	c.JSON(http.StatusOK, market.TopMatches(mine, others, barterMatchLimit))
}
