package market

import (
	"fmt"
	"strings"
	"time"
)

// FieldError 代表單一欄位的驗證錯誤
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// FieldErrors 聚合一次提交的所有欄位錯誤
type FieldErrors []FieldError

func (e FieldErrors) Error() string {
	msgs := make([]string, len(e))
	for i, fe := range e {
		msgs[i] = fe.Error()
	}
	return strings.Join(msgs, "; ")
}

// 日期欄位接受的格式
var harvestedDateLayouts = []string{time.RFC3339, "2006-01-02"}

// ParseHarvestedDate 解析客戶端送來的採收日期字串
// 支援 RFC3339 和 YYYY-MM-DD，解析失敗回傳格式錯誤
func ParseHarvestedDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, FieldError{Field: "harvestedDate", Message: "Harvested date is required"}
	}
	for _, layout := range harvestedDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, FieldError{Field: "harvestedDate", Message: "Invalid date format"}
}

// RegistrationInput 是註冊提交的原始輸入
type RegistrationInput struct {
	Username    string
	Password    string
	Name        string
	Location    string
	PhoneNumber string
	Role        string
}

// ValidateRegistration 檢查註冊輸入
// 規則沿用前端表單：username 至少 3 碼、password 至少 6 碼、電話至少 10 碼
func ValidateRegistration(in RegistrationInput) FieldErrors {
	var errs FieldErrors
	if len(strings.TrimSpace(in.Username)) < 3 {
		errs = append(errs, FieldError{Field: "username", Message: "Username must be at least 3 characters"})
	}
	if len(in.Password) < 6 {
		errs = append(errs, FieldError{Field: "password", Message: "Password must be at least 6 characters"})
	}
	if strings.TrimSpace(in.Name) == "" {
		errs = append(errs, FieldError{Field: "name", Message: "Name is required"})
	}
	if strings.TrimSpace(in.Location) == "" {
		errs = append(errs, FieldError{Field: "location", Message: "Location is required"})
	}
	if len(strings.TrimSpace(in.PhoneNumber)) < 10 {
		errs = append(errs, FieldError{Field: "phoneNumber", Message: "Phone number must be at least 10 digits"})
	}
	if in.Role != "farmer" && in.Role != "buyer" {
		errs = append(errs, FieldError{Field: "role", Message: "Role must be farmer or buyer"})
	}
	return errs
}

// LoginInput 是登入提交的原始輸入
type LoginInput struct {
	Username string
	Password string
}

// ValidateLogin 檢查登入輸入只要求欄位存在
func ValidateLogin(in LoginInput) FieldErrors {
	var errs FieldErrors
	if strings.TrimSpace(in.Username) == "" {
		errs = append(errs, FieldError{Field: "username", Message: "Username is required"})
	}
	if in.Password == "" {
		errs = append(errs, FieldError{Field: "password", Message: "Password is required"})
	}
	return errs
}

// ListingInput 是刊登提交的原始輸入
// HarvestedDate 維持字串，由驗證階段轉成 time.Time
type ListingInput struct {
	CropTypeID        string
	Quantity          float64
	Price             float64
	Quality           string
	Description       string
	Location          string
	HarvestedDate     string
	DeliveryAvailable bool
	DeliveryRadius    *int
}

// ValidateListing 檢查刊登輸入並回傳解析後的採收日期
// 除了必填檢查，數量與單價必須為正數，這是儲存層之前的最後防線
func ValidateListing(in ListingInput) (time.Time, FieldErrors) {
	var errs FieldErrors
	if strings.TrimSpace(in.CropTypeID) == "" {
		errs = append(errs, FieldError{Field: "cropTypeId", Message: "Crop type is required"})
	}
	if in.Quantity <= 0 {
		errs = append(errs, FieldError{Field: "quantity", Message: "Quantity must be greater than zero"})
	}
	if in.Price <= 0 {
		errs = append(errs, FieldError{Field: "price", Message: "Price must be greater than zero"})
	}
	switch in.Quality {
	case "A", "B", "C":
	default:
		errs = append(errs, FieldError{Field: "quality", Message: "Quality must be A, B or C"})
	}
	if len(strings.TrimSpace(in.Description)) < 3 {
		errs = append(errs, FieldError{Field: "description", Message: "Description must be at least 3 characters"})
	}
	if strings.TrimSpace(in.Location) == "" {
		errs = append(errs, FieldError{Field: "location", Message: "Location is required"})
	}
	harvested, err := ParseHarvestedDate(in.HarvestedDate)
	if err != nil {
		errs = append(errs, err.(FieldError))
	}
	if in.DeliveryAvailable && in.DeliveryRadius != nil && *in.DeliveryRadius <= 0 {
		errs = append(errs, FieldError{Field: "deliveryRadius", Message: "Delivery radius must be greater than zero"})
	}
	if len(errs) > 0 {
		return time.Time{}, errs
	}
	return harvested, nil
}

// BidInput 是出價提交的原始輸入
type BidInput struct {
	Amount  float64
	Message string
}

// ValidateBid 檢查出價輸入，金額必須為正數
func ValidateBid(in BidInput) FieldErrors {
	var errs FieldErrors
	if in.Amount <= 0 {
		errs = append(errs, FieldError{Field: "amount", Message: "Amount must be greater than zero"})
	}
	return errs
}

// BarterInput 是以物易物提案的原始輸入
type BarterInput struct {
	ReceiverUserID     string
	OfferCropTypeID    string
	OfferQuantity      float64
	ReceiverCropTypeID string
	ReceiverQuantity   float64
}

// ValidateBarter 檢查提案輸入
func ValidateBarter(in BarterInput) FieldErrors {
	var errs FieldErrors
	if strings.TrimSpace(in.ReceiverUserID) == "" {
		errs = append(errs, FieldError{Field: "receiverUserId", Message: "Receiver is required"})
	}
	if strings.TrimSpace(in.OfferCropTypeID) == "" {
		errs = append(errs, FieldError{Field: "offerCropTypeId", Message: "Offered crop type is required"})
	}
	if in.OfferQuantity <= 0 {
		errs = append(errs, FieldError{Field: "offerQuantity", Message: "Offered quantity must be greater than zero"})
	}
	if strings.TrimSpace(in.ReceiverCropTypeID) == "" {
		errs = append(errs, FieldError{Field: "receiverCropTypeId", Message: "Requested crop type is required"})
	}
	if in.ReceiverQuantity <= 0 {
		errs = append(errs, FieldError{Field: "receiverQuantity", Message: "Requested quantity must be greater than zero"})
	}
	return errs
}
