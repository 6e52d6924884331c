package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

func symbolAndInterval(c *gin.Context) (string, string) {
	symbol := strings.ToUpper(c.Param("symbol"))
	interval := c.Param("interval")
	if interval == "" {
		interval = c.DefaultQuery("interval", "1h")
	}
	return symbol, interval
}

// GetAnalysis godoc
// @Summary      Technical analysis for a symbol
// @Description  Computes EMA, RSI, Bollinger, MACD and ATR over the latest klines and derives a trade suggestion
// @Tags         analysis
// @Produce      json
// @Param        symbol    path   string  true   "Trading pair (e.g., BTCUSDT)"
// @Param        interval  query  string  false  "Kline interval"  default(1h)
// @Success      200  {object}  domain.SymbolAnalysis
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      502  {object}  map[string]string
// @Router       /api/analysis/{symbol} [get]
func (h *Handler) GetAnalysis(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-analysis")
	defer span.End()

	symbol, interval := symbolAndInterval(c)
	span.SetAttributes(attribute.String("symbol", symbol), attribute.String("interval", interval))

	result, err := h.analyses.Analyze(ctx, symbol, interval)
	if err != nil {
		respondError(c, span, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetCommentary godoc
// @Summary      LLM commentary on a symbol's analysis
// @Description  Explains the computed analysis in prose
// @Tags         analysis
// @Produce      json
// @Param        symbol    path   string  true   "Trading pair (e.g., BTCUSDT)"
// @Param        interval  query  string  false  "Kline interval"  default(1h)
// @Success      200  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/analysis/{symbol}/commentary [get]
func (h *Handler) GetCommentary(c *gin.Context) {
	if h.narrator == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "commentary unavailable: OPENAI_API_KEY not configured"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-commentary")
	defer span.End()

	symbol, interval := symbolAndInterval(c)
	span.SetAttributes(attribute.String("symbol", symbol), attribute.String("interval", interval))

	text, err := h.narrator.Commentary(ctx, symbol, interval)
	if err != nil {
		respondError(c, span, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "interval": interval, "commentary": text})
}

// GetPatterns godoc
// @Summary      Candlestick patterns
// @Description  Scans the last three candles for candlestick patterns
// @Tags         analysis
// @Produce      json
// @Param        symbol    path   string  true   "Trading pair (e.g., BTCUSDT)"
// @Param        interval  query  string  false  "Kline interval"  default(1h)
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/patterns/{symbol} [get]
func (h *Handler) GetPatterns(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-patterns")
	defer span.End()

	symbol, interval := symbolAndInterval(c)
	span.SetAttributes(attribute.String("symbol", symbol), attribute.String("interval", interval))

	patterns, err := h.analyses.Patterns(ctx, symbol, interval)
	if err != nil {
		respondError(c, span, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"patterns": patterns})
}

// GetLevels godoc
// @Summary      Key support and resistance levels
// @Description  Finds local extrema, counts touches and keeps at most six well-separated levels
// @Tags         analysis
// @Produce      json
// @Param        symbol    path   string  true   "Trading pair (e.g., BTCUSDT)"
// @Param        interval  query  string  false  "Kline interval"  default(1h)
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/levels/{symbol} [get]
func (h *Handler) GetLevels(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-levels")
	defer span.End()

	symbol, interval := symbolAndInterval(c)
	span.SetAttributes(attribute.String("symbol", symbol), attribute.String("interval", interval))

	levels, err := h.analyses.Levels(ctx, symbol, interval)
	if err != nil {
		respondError(c, span, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"levels": levels})
}

// GetKlines godoc
// @Summary      Formatted klines
// @Description  Returns the latest klines with numeric fields parsed
// @Tags         market
// @Produce      json
// @Param        symbol    path  string  true  "Trading pair (e.g., BTCUSDT)"
// @Param        interval  path  string  true  "Kline interval (e.g., 1h)"
// @Success      200  {array}   domain.Kline
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      502  {object}  map[string]string
// @Router       /klines/{symbol}/{interval} [get]
func (h *Handler) GetKlines(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-klines")
	defer span.End()

	symbol, interval := symbolAndInterval(c)
	span.SetAttributes(attribute.String("symbol", symbol), attribute.String("interval", interval))

	klines, err := h.analyses.Klines(ctx, symbol, interval)
	if err != nil {
		respondError(c, span, err)
		return
	}
	c.JSON(http.StatusOK, klines)
}
