package api

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"agrinet/adapters/session"
	"agrinet/models"
)

// setupHandlerTest 用 sqlmock 頂替資料庫連線，讓 handler 測試不需要真的 Postgres
func setupHandlerTest(t *testing.T) (*ServerImpl, sqlmock.Sqlmock) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		sqlDB.Close()
	})

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		TranslateError:       true,
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)

	return &ServerImpl{
		config:      ServerConfig{},
		logger:      slog.Default(),
		db:          db,
		htmlChecker: bluemonday.UGCPolicy(),
	}, mock
}

type memorySessionStore struct {
	data map[string]map[string]string
}

func (s *memorySessionStore) Load(_ context.Context, name string) (map[string]string, error) {
	return s.data[name], nil
}

func (s *memorySessionStore) Save(_ context.Context, name string, data map[string]string) error {
	s.data[name] = data
	return nil
}

func (s *memorySessionStore) Drop(_ context.Context, name string) error {
	delete(s.data, name)
	return nil
}

// loginAs 直接在 context 放進帶 user_id 的會話，略過 cookie 流程
func loginAs(userID uuid.UUID) gin.HandlerFunc {
	store := &memorySessionStore{data: map[string]map[string]string{
		"test-session": {sessionKeyUserID: userID.String()},
	}}
	return func(c *gin.Context) {
		c.Set(
			session.DefaultSessionKeyForContext,
			session.NewSession(c.Request.Context(), "test-session", store),
		)
		c.Next()
	}
}

func userRows(id uuid.UUID, role string) *sqlmock.Rows {
	return sqlmock.
		NewRows([]string{"id", "username", "password_hash", "name", "location", "phone_number", "role"}).
		AddRow(id.String(), "asha", "x", "Asha", "Pune", "9876543210", role)
}

func jsonRequest(method, target, body string) *http.Request {
	request := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	request.Header.Set("Content-Type", "application/json")
	return request
}

func TestRegister_DuplicateUsername(t *testing.T) {
	server, mock := setupHandlerTest(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "users"`).WillReturnError(gorm.ErrDuplicatedKey)
	mock.ExpectRollback()

	router := gin.New()
	router.POST("/api/auth/register", server.Register)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, jsonRequest(http.MethodPost, "/api/auth/register",
		`{"username":"asha","password":"secret123","name":"Asha","location":"Pune","phoneNumber":"9876543210","role":"farmer"}`,
	))

	assert.Equal(t, http.StatusConflict, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "Username already taken")
}

func TestPlaceBid_InactiveListing(t *testing.T) {
	server, mock := setupHandlerTest(t)

	buyerID := uuid.New()
	listingID := uuid.New()

	mock.ExpectQuery(`SELECT (.+) FROM "users"`).WillReturnRows(userRows(buyerID, models.RoleBuyer))
	mock.ExpectQuery(`SELECT (.+) FROM "listings"`).WillReturnRows(
		sqlmock.NewRows([]string{"id", "user_id", "crop_type_id", "is_active"}).
			AddRow(listingID.String(), uuid.New().String(), uuid.New().String(), false),
	)

	router := gin.New()
	router.Use(loginAs(buyerID))
	router.POST("/api/listings/:listingID/bids", server.PlaceBid)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, jsonRequest(http.MethodPost,
		"/api/listings/"+listingID.String()+"/bids", `{"amount":50}`,
	))

	assert.Equal(t, http.StatusGone, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "no longer active")
}

func TestListListings_SearchMatchesLocation(t *testing.T) {
	server, mock := setupHandlerTest(t)

	pattern := "%pune%"
	mock.ExpectQuery(
		`SELECT (.+) FROM "listings"(.+)LOWER\(listings\.description\) LIKE (.+)`+
			`LOWER\(listings\.location\) LIKE (.+)LOWER\("CropType"\."name"\) LIKE`,
	).
		WithArgs(true, pattern, pattern, pattern, listingPageSize).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	router := gin.New()
	router.GET("/api/listings", server.ListListings)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/listings?search=Pune", nil))

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "[]", recorder.Body.String())
}

func TestUpdateListing_ReactivateSoldListing(t *testing.T) {
	server, mock := setupHandlerTest(t)

	ownerID := uuid.New()
	listingID := uuid.New()

	mock.ExpectQuery(`SELECT (.+) FROM "users"`).WillReturnRows(userRows(ownerID, models.RoleFarmer))
	mock.ExpectQuery(`SELECT (.+) FROM "listings"`).WillReturnRows(
		sqlmock.NewRows([]string{"id", "user_id", "crop_type_id", "is_active"}).
			AddRow(listingID.String(), ownerID.String(), uuid.New().String(), false),
	)
	mock.ExpectQuery(`SELECT count\(\*\) FROM "bids"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	router := gin.New()
	router.Use(loginAs(ownerID))
	router.PATCH("/api/listings/:listingID", server.UpdateListing)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, jsonRequest(http.MethodPatch,
		"/api/listings/"+listingID.String(), `{"isActive":true}`,
	))

	assert.Equal(t, http.StatusConflict, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "cannot be reactivated")
}

func TestDecideBid_AlreadyDecided(t *testing.T) {
	server, mock := setupHandlerTest(t)
	mock.MatchExpectationsInOrder(false)

	ownerID := uuid.New()
	listingID := uuid.New()
	bidderID := uuid.New()
	bidID := uuid.New()

	mock.ExpectQuery(`SELECT (.+) FROM "users"`).WillReturnRows(userRows(ownerID, models.RoleFarmer))
	mock.ExpectQuery(`SELECT (.+) FROM "bids"`).WillReturnRows(
		sqlmock.NewRows([]string{"id", "listing_id", "user_id", "amount", "status"}).
			AddRow(bidID.String(), listingID.String(), bidderID.String(), 55.0, models.StatusAccepted),
	)
	mock.ExpectQuery(`SELECT (.+) FROM "listings"`).WillReturnRows(
		sqlmock.NewRows([]string{"id", "user_id"}).AddRow(listingID.String(), ownerID.String()),
	)
	mock.ExpectQuery(`SELECT (.+) FROM "users"`).WillReturnRows(userRows(bidderID, models.RoleBuyer))

	router := gin.New()
	router.Use(loginAs(ownerID))
	router.PATCH("/api/bids/:bidID", server.DecideBid)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, jsonRequest(http.MethodPatch,
		"/api/bids/"+bidID.String(), `{"action":"accept"}`,
	))

	assert.Equal(t, http.StatusConflict, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "already been decided")
}

func TestAcceptBid(t *testing.T) {
	t.Run("accepts, rejects others, deactivates and records price", func(t *testing.T) {
		server, mock := setupHandlerTest(t)

		bid := models.Bid{
			ID:        uuid.New(),
			ListingID: uuid.New(),
			Amount:    55,
			Status:    models.StatusPending,
			Listing: models.Listing{
				CropTypeID: uuid.New(),
				Location:   "Pune",
				Quality:    models.QualityStandard,
			},
		}

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "bids" SET`).
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), bid.ID, models.StatusPending).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE "bids" SET`).
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), bid.ListingID, models.StatusPending, bid.ID).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectExec(`UPDATE "listings" SET`).
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), bid.ListingID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(`INSERT INTO "price_histories"`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.New().String()))
		mock.ExpectCommit()

		assert.NoError(t, server.acceptBid(bid))
	})

	t.Run("already decided bid keeps its status", func(t *testing.T) {
		server, mock := setupHandlerTest(t)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "bids" SET`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := server.acceptBid(models.Bid{ID: uuid.New(), ListingID: uuid.New()})
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	})
}
