package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"agrinet/adapters/sms"
	"agrinet/market"
	"agrinet/models"
)

type inboundSMSRequest struct {
	From string `json:"from"`
	Body string `json:"body"`
}

// InboundSMS 處理簡訊閘道的 webhook
// 沒有智慧型手機的農夫靠這裡用簡訊指令查價、刊登和找買家，
// 無法解析的內容回使用說明而不是錯誤
func (server *ServerImpl) InboundSMS(c *gin.Context) {
	const op = "api.ServerImpl.InboundSMS"

	if c.GetHeader("X-Webhook-Token") != server.config.SMS.WebhookToken {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid webhook token"})
		return
	}

	request := inboundSMSRequest{}
	if err := c.ShouldBindJSON(&request); err != nil || request.From == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	command, err := sms.ParseCommand(request.Body)
	reply := ""
	switch {
	case err != nil:
		reply = sms.HelpText()
	case command.Kind == sms.CommandHelp:
		reply = sms.HelpText()
	case command.Kind == sms.CommandPrice:
		reply = server.smsPriceReply(command)
	case command.Kind == sms.CommandSell:
		reply = server.smsSellReply(request.From, command)
	case command.Kind == sms.CommandBuy:
		reply = server.smsBuyReply(command)
	}

	if _, err := server.smsGateway.SendText(c.Request.Context(), request.From, reply); err != nil {
		server.logger.Error("failed to send sms reply",
			slog.String("to", request.From),
			slog.Any("error", err),
		)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to deliver reply"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Reply sent"})
}

// findCropTypeByName 以不分大小寫的名稱找作物種類
func (server *ServerImpl) findCropTypeByName(name string) (*models.CropType, error) {
	cropType := models.CropType{}
	err := server.db.Where("LOWER(name) = ?", strings.ToLower(name)).First(&cropType).Error
	if err != nil {
		return nil, err
	}
	return &cropType, nil
}

func (server *ServerImpl) smsPriceReply(command sms.Command) string {
	cropType, err := server.findCropTypeByName(command.Crop)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Sprintf("Unknown crop %q. Send HELP for usage.", command.Crop)
		}
		server.logger.Error("sms price lookup failed", slog.Any("error", err))
		return "Service unavailable, try again later."
	}

	histories := []models.PriceHistory{}
	err = server.db.
		Where("crop_type_id = ? AND recorded_date >= ?", cropType.ID, time.Now().Add(-estimateWindow)).
		Find(&histories).Error
	if err != nil {
		server.logger.Error("sms price lookup failed", slog.Any("error", err))
		return "Service unavailable, try again later."
	}

	samples := make([]market.PriceSample, len(histories))
	var sum float64
	for i, h := range histories {
		samples[i] = market.PriceSample{
			Price:      h.Price,
			Quality:    h.Quality,
			Location:   h.Location,
			RecordedAt: h.RecordedDate,
		}
		sum += h.Price
	}
	overallAverage := 0.0
	if len(samples) > 0 {
		overallAverage = sum / float64(len(samples))
	}

	estimate, err := market.BuildEstimate(samples, command.Location, "", overallAverage)
	if err != nil {
		return fmt.Sprintf("Not enough price data for %s yet.", cropType.Name)
	}
	return fmt.Sprintf("%s: %s per kg, avg ₹%.0f (%d samples)",
		cropType.Name, estimate.PriceRange, estimate.AveragePrice, estimate.SampleCount)
}

func (server *ServerImpl) smsSellReply(from string, command sms.Command) string {
	user := models.User{}
	if err := server.db.Where("phone_number = ?", from).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "This phone number is not registered. Sign up on AgriNet first."
		}
		server.logger.Error("sms sell lookup failed", slog.Any("error", err))
		return "Service unavailable, try again later."
	}
	if user.Role != models.RoleFarmer {
		return "Only farmer accounts can create listings."
	}

	cropType, err := server.findCropTypeByName(command.Crop)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Sprintf("Unknown crop %q. Send HELP for usage.", command.Crop)
		}
		server.logger.Error("sms sell lookup failed", slog.Any("error", err))
		return "Service unavailable, try again later."
	}

	listing := models.Listing{
		UserID:        user.ID,
		CropTypeID:    cropType.ID,
		Quantity:      command.Quantity,
		Price:         command.Price,
		Quality:       models.QualityStandard,
		Description:   fmt.Sprintf("%s listed via SMS", cropType.Name),
		Location:      user.Location,
		HarvestedDate: time.Now(),
	}
	if err := server.db.Create(&listing).Error; err != nil {
		server.logger.Error("sms sell create failed", slog.Any("error", err))
		return "Service unavailable, try again later."
	}
	return fmt.Sprintf("Listed %.0fkg of %s at ₹%.0f/kg in %s.",
		command.Quantity, cropType.Name, command.Price, user.Location)
}

// smsBuyLimit 是 BUY 回覆中最多列出的刊登數
const smsBuyLimit = 3

func (server *ServerImpl) smsBuyReply(command sms.Command) string {
	cropType, err := server.findCropTypeByName(command.Crop)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Sprintf("Unknown crop %q. Send HELP for usage.", command.Crop)
		}
		server.logger.Error("sms buy lookup failed", slog.Any("error", err))
		return "Service unavailable, try again later."
	}

	listings := []models.Listing{}
	err = server.db.
		Joins("User").
		Where("listings.crop_type_id = ? AND listings.is_active = ?", cropType.ID, true).
		Order("listings.price asc").
		Limit(smsBuyLimit).
		Find(&listings).Error
	if err != nil {
		server.logger.Error("sms buy lookup failed", slog.Any("error", err))
		return "Service unavailable, try again later."
	}
	if len(listings) == 0 {
		return fmt.Sprintf("No active listings for %s right now.", cropType.Name)
	}

	lines := make([]string, 0, len(listings)+1)
	lines = append(lines, fmt.Sprintf("%s offers:", cropType.Name))
	for _, listing := range listings {
		lines = append(lines, fmt.Sprintf("%.0fkg @ ₹%.0f/kg in %s. Seller: %s (%s)",
			listing.Quantity, listing.Price, listing.Location, listing.User.Name, listing.User.PhoneNumber))
	}
	return strings.Join(lines, "\n")
}
