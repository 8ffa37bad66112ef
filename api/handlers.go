package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pennybid/auction"
	"pennybid/models"
)

// rejectionResponse 將拒絕錯誤轉為 400/404 回應；
// 非拒絕類錯誤回傳false由呼叫端當成伺服器錯誤處理。
func rejectionResponse(c *gin.Context, err error) bool {
	if errors.Is(err, auction.ErrAuctionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"reason": auction.Reason(err)})
		return true
	}
	// 版本衝突代表重試一次是安全的，用409和一般的拒絕區分開
	if errors.Is(err, auction.ErrConflict) {
		c.JSON(http.StatusConflict, gin.H{"reason": auction.Reason(err)})
		return true
	}
	if auction.IsRejection(err) {
		c.JSON(http.StatusBadRequest, gin.H{"reason": auction.Reason(err)})
		return true
	}
	return false
}

// Create a new auction (admin only)
// (POST /api/auction)
func (impl *ServerImpl) CreateAuction(c *gin.Context) {
	const op = "CreateAuction"
	var body struct {
		Name                string `json:"name" binding:"required"`
		Description         string `json:"description"`
		Category            string `json:"category" binding:"required"`
		EntryFee            int64  `json:"entryFee"`
		MinimumParticipants int    `json:"minimumParticipants"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	// 檢查類別是否合法
	category := models.AuctionCategory(body.Category)
	switch category {
	case models.CategoryCash, models.CategoryProduct, models.CategoryCoupon:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid category"})
		return
	}
	if body.EntryFee < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid entry fee"})
		return
	}
	// 最低報名人數至少為1
	if body.MinimumParticipants < 1 {
		body.MinimumParticipants = 1
	}

	// 拍賣一律以pending建立，啟動由排程器決定
	record := models.Auction{
		Name:                body.Name,
		Description:         impl.htmlChecker.Sanitize(body.Description),
		Category:            category,
		Status:              models.AuctionPending,
		EntryFee:            body.EntryFee,
		MinimumParticipants: body.MinimumParticipants,
	}
	if result := impl.db.Create(&record); result.Error != nil {
		slog.Error("Fail to create auction", slog.String("op", op), slog.Any("error", result.Error))
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Header("Location", fmt.Sprintf("/api/auction/%s", record.ID))
	c.JSON(http.StatusCreated, gin.H{"id": record.ID})
}

// List open auctions, optionally filtered by category
// (GET /api/auctions)
func (impl *ServerImpl) ListAuctions(c *gin.Context) {
	const op = "ListAuctions"
	query := impl.db.Model(&models.Auction{}).
		Where("status IN ?", []models.AuctionStatus{models.AuctionPending, models.AuctionActive})
	if category := c.Query("category"); category != "" {
		query = query.Where("category = ?", category)
	}

	var auctions []models.Auction
	if result := query.Order("created_at").Find(&auctions); result.Error != nil {
		slog.Error("Fail to list auctions", slog.String("op", op), slog.Any("error", result.Error))
		c.Status(http.StatusInternalServerError)
		return
	}

	output := make([]gin.H, len(auctions))
	for i, a := range auctions {
		output[i] = gin.H{
			"id":                  a.ID,
			"name":                a.Name,
			"description":         a.Description,
			"category":            a.Category,
			"status":              a.Status,
			"entryFee":            a.EntryFee,
			"minimumParticipants": a.MinimumParticipants,
			"currentBid":          a.LeaderBidAmount,
			"deadline":            a.Deadline,
		}
	}
	c.JSON(http.StatusOK, gin.H{"count": len(output), "items": output})
}

// Get auction details
// (GET /api/auction/{auctionID})
func (impl *ServerImpl) GetAuction(c *gin.Context) {
	const op = "GetAuction"
	auctionID, err := uuid.Parse(c.Param("auctionID"))
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}

	record := models.Auction{ID: auctionID}
	result := impl.db.
		Preload("Leader").
		Preload("BidRecords", func(db *gorm.DB) *gorm.DB {
			return db.Order(clause.OrderByColumn{Column: clause.Column{Name: "created_at"}, Desc: true})
		}).
		Preload("BidRecords.User").
		First(&record)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			c.Status(http.StatusNotFound)
			return
		}
		slog.Error("Fail to find auction", slog.String("op", op), slog.Any("error", result.Error))
		c.Status(http.StatusInternalServerError)
		return
	}

	bidRecords := make([]gin.H, len(record.BidRecords))
	for i, bid := range record.BidRecords {
		bidRecords[i] = gin.H{
			"bidder": bid.User.Username,
			"amount": bid.Amount,
			"time":   bid.CreatedAt,
		}
	}
	var leaderName *string
	if record.Leader != nil {
		leaderName = lo.ToPtr(record.Leader.Username)
	}
	c.JSON(http.StatusOK, gin.H{
		"id":                  record.ID,
		"name":                record.Name,
		"description":         record.Description,
		"category":            record.Category,
		"status":              record.Status,
		"entryFee":            record.EntryFee,
		"minimumParticipants": record.MinimumParticipants,
		"deadline":            record.Deadline,
		"currentBid":          record.LeaderBidAmount,
		"currentLeaderName":   leaderName,
		"winnerId":            record.WinnerID,
		"bidRecords":          bidRecords,
	})
}

// Pay the entry fee to join an auction
// (POST /api/auction/{auctionID}/enroll)
func (impl *ServerImpl) PayEntryFee(c *gin.Context) {
	const op = "PayEntryFee"
	auctionID, err := uuid.Parse(c.Param("auctionID"))
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}

	if err := impl.arbiter.Enroll(c.Request.Context(), auctionID, currentUserID(c)); err != nil {
		if rejectionResponse(c, err) {
			return
		}
		slog.Error("Fail to pay entry fee", slog.String("op", op), slog.Any("error", err))
		c.Status(http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Entry fee paid successfully"})
}

// Place a bid on an auction
// (POST /api/auction/{auctionID}/bids)
func (impl *ServerImpl) PlaceBid(c *gin.Context) {
	const op = "PlaceBid"
	auctionID, err := uuid.Parse(c.Param("auctionID"))
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}

	acceptance, err := impl.arbiter.PlaceBid(c.Request.Context(), auctionID, currentUserID(c))
	if err != nil {
		if rejectionResponse(c, err) {
			return
		}
		slog.Error("Fail to place bid", slog.String("op", op), slog.Any("error", err))
		c.Status(http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"leaderId":    acceptance.LeaderID,
		"amount":      acceptance.Amount,
		"newDeadline": acceptance.NewDeadline,
	})
}

// Get the remaining time of an auction, always computed from the live deadline
// (GET /api/auction/{auctionID}/remaining-time)
func (impl *ServerImpl) GetRemainingTime(c *gin.Context) {
	const op = "GetRemainingTime"
	auctionID, err := uuid.Parse(c.Param("auctionID"))
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}

	record := models.Auction{ID: auctionID}
	if result := impl.db.Preload("Leader").First(&record); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			c.Status(http.StatusNotFound)
			return
		}
		slog.Error("Fail to find auction", slog.String("op", op), slog.Any("error", result.Error))
		c.Status(http.StatusInternalServerError)
		return
	}

	now := time.Now()
	var remaining float64
	if record.Deadline != nil {
		remaining = max(0, record.Deadline.Sub(now).Seconds())
	}
	var leaderName *string
	if record.Leader != nil {
		leaderName = lo.ToPtr(record.Leader.Username)
	}
	c.JSON(http.StatusOK, gin.H{
		"remainingSeconds":  remaining,
		"currentLeaderName": leaderName,
		"serverTime":        now,
		"endTime":           record.Deadline,
	})
}

// Track auction events over SSE
// (GET /api/auction/{auctionID}/events)
func (impl *ServerImpl) StreamAuctionEvents(c *gin.Context) {
	const op = "StreamAuctionEvents"
	auctionID, err := uuid.Parse(c.Param("auctionID"))
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}

	// 檢查拍賣是否存在且尚未結束
	record := models.Auction{ID: auctionID}
	if result := impl.db.First(&record); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			c.Status(http.StatusNotFound)
			return
		}
		slog.Error("Fail to find auction", slog.String("op", op), slog.Any("error", result.Error))
		c.Status(http.StatusInternalServerError)
		return
	}
	if record.Status == models.AuctionCompleted {
		c.JSON(http.StatusGone, gin.H{"message": "Auction has ended"})
		return
	}

	// SSE請求合法，開始初始化串流
	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Transfer-Encoding", "chunked")
	ch, err := impl.manager.Subscribe(auctionID.String())
	if err != nil {
		slog.Error("Fail to subscribe to auction events", slog.String("op", op), slog.Any("error", err))
		c.Status(http.StatusInternalServerError)
		return
	}
	defer impl.manager.Unsubscribe(auctionID.String(), ch)

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()
	for {
		select {
		case <-c.Request.Context().Done():
			return
		case event, ok := <-ch:
			// 訂閱者跟不上廣播速度時通道會被廣播端關閉
			if !ok {
				return
			}
			c.SSEvent(string(event.Type), event)
			w.Flush()
		// 30秒沒有事件就發送一個空行，確保瀏覽器和proxy不會斷開連線
		case <-keepalive.C:
			if _, err := w.WriteString("\n\n"); err != nil {
				return
			}
			w.Flush()
		}
	}
}
