package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"agrinet/market"
	"agrinet/models"
)

type listingRequest struct {
	CropTypeID        string  `json:"cropTypeId"`
	Quantity          float64 `json:"quantity"`
	Price             float64 `json:"price"`
	Quality           string  `json:"quality"`
	Description       string  `json:"description"`
	Location          string  `json:"location"`
	HarvestedDate     string  `json:"harvestedDate"`
	DeliveryAvailable bool    `json:"deliveryAvailable"`
	DeliveryRadius    *int    `json:"deliveryRadius"`
	ImageURL          *string `json:"imageUrl"`
}

type listingResponse struct {
	ID                string    `json:"id"`
	UserID            string    `json:"userId"`
	FarmerName        string    `json:"farmerName"`
	CropTypeID        string    `json:"cropTypeId"`
	CropType          string    `json:"cropType"`
	Quantity          float64   `json:"quantity"`
	Price             float64   `json:"price"`
	Quality           string    `json:"quality"`
	Description       string    `json:"description"`
	Location          string    `json:"location"`
	HarvestedDate     time.Time `json:"harvestedDate"`
	DeliveryAvailable bool      `json:"deliveryAvailable"`
	DeliveryRadius    *int      `json:"deliveryRadius"`
	IsVerified        bool      `json:"isVerified"`
	IsActive          bool      `json:"isActive"`
	ImageURL          *string   `json:"imageUrl"`
	BidCount          int       `json:"bidCount"`
	HighestBid        float64   `json:"highestBid"`
	CreatedAt         time.Time `json:"createdAt"`
}

func newListingResponse(listing models.Listing) listingResponse {
	highest := 0.0
	for _, bid := range listing.BidRecords {
		if bid.Amount > highest {
			highest = bid.Amount
		}
	}
	return listingResponse{
		ID:                listing.ID.String(),
		UserID:            listing.UserID.String(),
		FarmerName:        listing.User.Name,
		CropTypeID:        listing.CropTypeID.String(),
		CropType:          listing.CropType.Name,
		Quantity:          listing.Quantity,
		Price:             listing.Price,
		Quality:           listing.Quality,
		Description:       listing.Description,
		Location:          listing.Location,
		HarvestedDate:     listing.HarvestedDate,
		DeliveryAvailable: listing.DeliveryAvailable,
		DeliveryRadius:    listing.DeliveryRadius,
		IsVerified:        listing.IsVerified,
		IsActive:          listing.IsActive,
		ImageURL:          listing.ImageURL,
		BidCount:          len(listing.BidRecords),
		HighestBid:        highest,
		CreatedAt:         listing.CreatedAt,
	}
}

// listingPageSize 是刊登列表單頁的最大筆數
const listingPageSize = 50

// ListListings 回傳有效的刊登，支援作物、品質、地點、關鍵字過濾與排序
func (server *ServerImpl) ListListings(c *gin.Context) {
	const op = "api.ServerImpl.ListListings"

	sortOption, err := market.ParseSortOption(c.Query("sort"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid sort option: %s", c.Query("sort"))})
		return
	}

	// 欄位都帶上 listings 前綴，避免和 join 進來的表撞名
	query := server.db.
		Preload("BidRecords").
		Joins("User").
		Joins("CropType").
		Where("listings.is_active = ?", true)

	if cropTypeID := c.Query("cropTypeId"); cropTypeID != "" {
		id, err := uuid.Parse(cropTypeID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid crop type id"})
			return
		}
		query = query.Where("listings.crop_type_id = ?", id)
	}
	if quality := c.Query("quality"); quality != "" {
		query = query.Where("listings.quality = ?", quality)
	}
	if location := market.NormalizeSearch(c.Query("location")); location != "" {
		query = query.Where("LOWER(listings.location) LIKE ?", "%"+location+"%")
	}
	if search := market.NormalizeSearch(c.Query("search")); search != "" {
		pattern := "%" + search + "%"
		query = query.Where(
			server.db.Where("LOWER(listings.description) LIKE ?", pattern).
				Or("LOWER(listings.location) LIKE ?", pattern).
				Or(`LOWER("CropType"."name") LIKE ?`, pattern),
		)
	}

	for _, column := range sortOption.OrderColumns() {
		query = query.Order(clause.OrderByColumn{
			Column: clause.Column{Table: "listings", Name: column.Name},
			Desc:   column.Desc,
		})
	}

	// 分頁參數，給壞值就退回預設
	limit := listingPageSize
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 && v <= listingPageSize {
		limit = v
	}
	offset := 0
	if v, err := strconv.Atoi(c.Query("offset")); err == nil && v > 0 {
		offset = v
	}
	query = query.Limit(limit).Offset(offset)

	listings := []models.Listing{}
	if err := query.Find(&listings).Error; err != nil {
		server.abortWithError(c, op, fmt.Errorf("[%s] Fail to query listings, err=%w", op, err))
		return
	}
	c.JSON(http.StatusOK, lo.Map(listings, func(l models.Listing, _ int) listingResponse {
		return newListingResponse(l)
	}))
}

// CreateListing 建立新刊登，只有農夫角色能刊登
func (server *ServerImpl) CreateListing(c *gin.Context) {
	const op = "api.ServerImpl.CreateListing"

	user, err := server.currentUser(c)
	if err != nil {
		server.abortWithError(c, op, err)
		return
	}
	if user.Role != models.RoleFarmer {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only farmers can create listings"})
		return
	}

	request := listingRequest{}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	harvested, errs := market.ValidateListing(market.ListingInput{
		CropTypeID:        request.CropTypeID,
		Quantity:          request.Quantity,
		Price:             request.Price,
		Quality:           request.Quality,
		Description:       request.Description,
		Location:          request.Location,
		HarvestedDate:     request.HarvestedDate,
		DeliveryAvailable: request.DeliveryAvailable,
		DeliveryRadius:    request.DeliveryRadius,
	})
	if errs != nil {
		server.abortWithError(c, op, errs)
		return
	}

	cropTypeID, err := uuid.Parse(request.CropTypeID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid crop type id"})
		return
	}
	if err := server.db.First(&models.CropType{}, "id = ?", cropTypeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown crop type"})
			return
		}
		server.abortWithError(c, op, fmt.Errorf("[%s] Fail to query crop type, err=%w", op, err))
		return
	}

	listing := models.Listing{
		UserID:            user.ID,
		CropTypeID:        cropTypeID,
		Quantity:          request.Quantity,
		Price:             request.Price,
		Quality:           request.Quality,
		Description:       server.htmlChecker.Sanitize(request.Description),
		Location:          request.Location,
		HarvestedDate:     harvested,
		DeliveryAvailable: request.DeliveryAvailable,
		DeliveryRadius:    request.DeliveryRadius,
		ImageURL:          request.ImageURL,
	}
	if err := server.db.Create(&listing).Error; err != nil {
		server.abortWithError(c, op, fmt.Errorf("[%s] Fail to create listing, err=%w", op, err))
		return
	}

	listing.User = *user
	c.JSON(http.StatusCreated, newListingResponse(listing))
}

// loadListing 以路徑參數載入刊登，找不到時直接回應 404
func (server *ServerImpl) loadListing(c *gin.Context, preload bool) (*models.Listing, bool) {
	const op = "api.ServerImpl.loadListing"

	listingID, err := uuid.Parse(c.Param("listingID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing id"})
		return nil, false
	}

	query := server.db
	if preload {
		query = query.Preload("BidRecords").Joins("User").Joins("CropType")
	}
	listing := models.Listing{}
	if err := query.First(&listing, "listings.id = ?", listingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Listing not found"})
			return nil, false
		}
		server.abortWithError(c, op, fmt.Errorf("[%s] Fail to query listing, err=%w", op, err))
		return nil, false
	}
	return &listing, true
}

// GetListing 回傳單一刊登的完整資料
func (server *ServerImpl) GetListing(c *gin.Context) {
	listing, ok := server.loadListing(c, true)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, newListingResponse(*listing))
}

// UpdateListing 更新刊登內容，只有擁有者能更新
// 送來的欄位覆蓋舊值，更新後的整體仍要通過刊登驗證
func (server *ServerImpl) UpdateListing(c *gin.Context) {
	const op = "api.ServerImpl.UpdateListing"

	user, err := server.currentUser(c)
	if err != nil {
		server.abortWithError(c, op, err)
		return
	}
	listing, ok := server.loadListing(c, false)
	if !ok {
		return
	}
	if listing.UserID != user.ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not the owner of this listing"})
		return
	}

	request := struct {
		Quantity          *float64 `json:"quantity"`
		Price             *float64 `json:"price"`
		Quality           *string  `json:"quality"`
		Description       *string  `json:"description"`
		Location          *string  `json:"location"`
		HarvestedDate     *string  `json:"harvestedDate"`
		DeliveryAvailable *bool    `json:"deliveryAvailable"`
		DeliveryRadius    *int     `json:"deliveryRadius"`
		ImageURL          *string  `json:"imageUrl"`
		IsActive          *bool    `json:"isActive"`
	}{}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if request.Quantity != nil {
		listing.Quantity = *request.Quantity
	}
	if request.Price != nil {
		listing.Price = *request.Price
	}
	if request.Quality != nil {
		listing.Quality = *request.Quality
	}
	if request.Description != nil {
		listing.Description = server.htmlChecker.Sanitize(*request.Description)
	}
	if request.Location != nil {
		listing.Location = *request.Location
	}
	if request.HarvestedDate != nil {
		harvested, err := market.ParseHarvestedDate(*request.HarvestedDate)
		if err != nil {
			server.abortWithError(c, op, market.FieldErrors{err.(market.FieldError)})
			return
		}
		listing.HarvestedDate = harvested
	}
	if request.DeliveryAvailable != nil {
		listing.DeliveryAvailable = *request.DeliveryAvailable
	}
	if request.DeliveryRadius != nil {
		listing.DeliveryRadius = request.DeliveryRadius
	}
	if request.ImageURL != nil {
		listing.ImageURL = request.ImageURL
	}
	if request.IsActive != nil {
		// 成交過的刊登不能重新上架，下架是接受出價的一部分
		if *request.IsActive && !listing.IsActive {
			var accepted int64
			if err := server.db.Model(&models.Bid{}).
				Where("listing_id = ? AND status = ?", listing.ID, models.StatusAccepted).
				Count(&accepted).Error; err != nil {
				server.abortWithError(c, op, fmt.Errorf("[%s] Fail to check accepted bids, err=%w", op, err))
				return
			}
			if accepted > 0 {
				c.JSON(http.StatusConflict, gin.H{"error": "Listing was sold and cannot be reactivated"})
				return
			}
		}
		listing.IsActive = *request.IsActive
	}

	if _, errs := market.ValidateListing(market.ListingInput{
		CropTypeID:        listing.CropTypeID.String(),
		Quantity:          listing.Quantity,
		Price:             listing.Price,
		Quality:           listing.Quality,
		Description:       listing.Description,
		Location:          listing.Location,
		HarvestedDate:     listing.HarvestedDate.Format(time.RFC3339),
		DeliveryAvailable: listing.DeliveryAvailable,
		DeliveryRadius:    listing.DeliveryRadius,
	}); errs != nil {
		server.abortWithError(c, op, errs)
		return
	}

	if err := server.db.Save(listing).Error; err != nil {
		server.abortWithError(c, op, fmt.Errorf("[%s] Fail to update listing, err=%w", op, err))
		return
	}
	c.JSON(http.StatusOK, newListingResponse(*listing))
}

// DeactivateListing 下架刊登，只有擁有者能下架
// 不做實體刪除，出價紀錄和價格歷史都要留著
func (server *ServerImpl) DeactivateListing(c *gin.Context) {
	const op = "api.ServerImpl.DeactivateListing"

	user, err := server.currentUser(c)
	if err != nil {
		server.abortWithError(c, op, err)
		return
	}
	listing, ok := server.loadListing(c, false)
	if !ok {
		return
	}
	if listing.UserID != user.ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not the owner of this listing"})
		return
	}

	if err := server.db.Model(listing).Update("is_active", false).Error; err != nil {
		server.abortWithError(c, op, fmt.Errorf("[%s] Fail to deactivate listing, err=%w", op, err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Listing deactivated"})
}
