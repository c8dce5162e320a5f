package handler

import (
	"net/http"
	"strings"

	"github.com/GoPolymarket/polysession/internal/model"
	"github.com/gin-gonic/gin"
)

const msgMissingTokenID = "Missing tokenId parameter"

// MarketHandler serves public market data; it needs no wallet.
type MarketHandler struct {
	quotes Quotes
	books  BookProvider
}

func NewMarketHandler(quotes Quotes, books BookProvider) *MarketHandler {
	return &MarketHandler{quotes: quotes, books: books}
}

func (h *MarketHandler) Prices(c *gin.Context) {
	var req model.PricesRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.TokenIDs) == 0 {
		badRequest(c, "Missing or invalid tokenIds array")
		return
	}
	prices, err := h.quotes.GetPrices(c.Request.Context(), req.TokenIDs)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"prices": prices})
}

func (h *MarketHandler) TickSize(c *gin.Context) {
	tokenID := strings.TrimSpace(c.Query("tokenId"))
	if tokenID == "" {
		badRequest(c, msgMissingTokenID)
		return
	}
	tick, err := h.quotes.GetTickSize(c.Request.Context(), tokenID)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tickSize": tick})
}

func (h *MarketHandler) Book(c *gin.Context) {
	tokenID := strings.TrimSpace(c.Query("tokenId"))
	if tokenID == "" {
		badRequest(c, msgMissingTokenID)
		return
	}
	book, err := h.books.Book(c.Request.Context(), tokenID)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}
