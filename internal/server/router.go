package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/moveehq/movee/backend/internal/geo"
	"github.com/moveehq/movee/backend/internal/presence"
	"github.com/moveehq/movee/backend/internal/stream"
	"github.com/moveehq/movee/backend/internal/venues"
	"go.uber.org/zap"
)

const userIDContextKey = "movee_user_id"

var (
	errMissingTokenManager  = errors.New("token manager dependency required")
	errMissingQueryService  = errors.New("query service dependency required")
	errMissingVenueStore    = errors.New("venue store dependency required")
	errMissingPresence      = errors.New("presence table dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// TokenValidator checks a bearer token and returns the verified user id.
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

// UsernameDirectory resolves display names and records user activity.
type UsernameDirectory interface {
	ResolveUsername(userID string) string
	Touch(userID string)
}

// Dependencies wires the HTTP layer to the core services.
type Dependencies struct {
	TokenManager TokenValidator
	Query        *stream.Service
	VenueStore   *venues.Store
	Presence     *presence.Table
	Users        UsernameDirectory
	RateLimit    gin.HandlerFunc
	Logger       *zap.Logger
}

// NewHTTPHandler builds the gin router serving the query, write, and live
// stream endpoints.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.Query == nil {
		return nil, errMissingQueryService
	}
	if deps.VenueStore == nil {
		return nil, errMissingVenueStore
	}
	if deps.Presence == nil {
		return nil, errMissingPresence
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:   deps.TokenManager,
		query:    deps.Query,
		venues:   deps.VenueStore,
		presence: deps.Presence,
		users:    deps.Users,
		logger:   logger,
	}

	router.GET("/healthz", handler.handleHealth)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/venues/nearby", handler.handleNearbyVenues)
	protected.POST("/venues/:id/capacity", handler.handleCommitCapacity)
	protected.GET("/presence/friends", handler.handleActiveFriends)
	protected.GET("/live/stream", handler.handleLiveStream)

	presenceWrite := protected.Group("/")
	if deps.RateLimit != nil {
		presenceWrite.Use(deps.RateLimit)
	}
	presenceWrite.POST("/presence", handler.handleReportPresence)

	return router, nil
}

type httpHandler struct {
	tokens   TokenValidator
	query    *stream.Service
	venues   *venues.Store
	presence *presence.Table
	users    UsernameDirectory
	logger   *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) handleNearbyVenues(c *gin.Context) {
	center, ok := parsePoint(c.Query("lat"), c.Query("lng"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	radius, err := strconv.ParseFloat(c.Query("radius"), 64)
	if err != nil || radius < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	found := h.query.NearbyVenues(center, radius)
	c.JSON(http.StatusOK, gin.H{"venues": found})
}

type commitCapacityPayload struct {
	Current         uint64 `json:"current"`
	ExpectedVersion int64  `json:"expected_version"`
}

func (h *httpHandler) handleCommitCapacity(c *gin.Context) {
	venueID := c.Param("id")

	var request commitCapacityPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	snapshot, err := h.venues.CommitCapacity(venueID, request.Current, request.ExpectedVersion)
	if err != nil {
		var conflict *venues.ConflictError
		switch {
		case errors.As(err, &conflict):
			c.JSON(http.StatusConflict, gin.H{
				"error":  "version_conflict",
				"latest": conflict.Latest,
			})
		case errors.Is(err, venues.ErrVenueNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		default:
			h.logger.Error("capacity commit failed", zap.String("venue_id", venueID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "commit_failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"venue": snapshot})
}

type reportPresencePayload struct {
	VenueID   *string  `json:"venue_id"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func (h *httpHandler) handleReportPresence(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var request reportPresencePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	record := presence.Record{UserID: userID}
	if request.VenueID != nil && strings.TrimSpace(*request.VenueID) != "" {
		venueID := strings.TrimSpace(*request.VenueID)
		record.VenueID = &venueID
	}
	if request.Latitude != nil || request.Longitude != nil {
		if request.Latitude == nil || request.Longitude == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		}
		point, err := geo.NewPoint(*request.Latitude, *request.Longitude)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		}
		record.Location = &point
	}

	if err := h.presence.Upsert(record); err != nil {
		if errors.Is(err, presence.ErrEmptyRecord) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		}
		h.logger.Error("presence upsert failed", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "presence_failed"})
		return
	}

	if h.users != nil {
		h.users.Touch(userID)
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

type activeFriendPayload struct {
	UserID      string     `json:"user_id"`
	Username    string     `json:"username,omitempty"`
	VenueID     *string    `json:"venue_id,omitempty"`
	Location    *geo.Point `json:"location,omitempty"`
	LastUpdated time.Time  `json:"last_updated"`
}

func (h *httpHandler) handleActiveFriends(c *gin.Context) {
	ids := splitIDs(c.Query("ids"))
	if len(ids) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}

	records := h.presence.ListActive(func(record presence.Record) bool {
		_, ok := wanted[record.UserID]
		return ok
	})

	friends := make([]activeFriendPayload, 0, len(records))
	for _, record := range records {
		username := ""
		if h.users != nil {
			username = h.users.ResolveUsername(record.UserID)
		}
		friends = append(friends, activeFriendPayload{
			UserID:      record.UserID,
			Username:    username,
			VenueID:     record.VenueID,
			Location:    record.Location,
			LastUpdated: record.LastUpdated,
		})
	}
	c.JSON(http.StatusOK, gin.H{"friends": friends})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, subject)
	c.Next()
}

// bearerToken extracts the token from the Authorization header, falling back
// to the access_token query parameter for EventSource clients that cannot set
// headers.
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return strings.TrimSpace(c.Query("access_token"))
}

func parsePoint(rawLat, rawLng string) (geo.Point, bool) {
	lat, err := strconv.ParseFloat(rawLat, 64)
	if err != nil {
		return geo.Point{}, false
	}
	lng, err := strconv.ParseFloat(rawLng, 64)
	if err != nil {
		return geo.Point{}, false
	}
	point, err := geo.NewPoint(lat, lng)
	if err != nil {
		return geo.Point{}, false
	}
	return point, true
}

func splitIDs(raw string) []string {
	var ids []string
	for _, part := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			ids = append(ids, trimmed)
		}
	}
	return ids
}
