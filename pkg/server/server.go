package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/wenqiu/sunoradar/internal/store"
	"github.com/wenqiu/sunoradar/pkg/bili"
	"github.com/wenqiu/sunoradar/pkg/crawler"
)

// Trigger is the slice of the crawler the HTTP layer needs.
type Trigger interface {
	CrawlChart(ctx context.Context, chartID string) (*crawler.Result, error)
	CrawlAll(ctx context.Context) ([]crawler.Summary, error)
}

// Server provides the HTTP API.
type Server struct {
	store   store.Store
	bili    *bili.Client
	trigger Trigger
	secret  string
	port    int
}

// New creates a new HTTP server. An empty secret leaves the crawl trigger
// unauthenticated (local use only).
func New(s store.Store, client *bili.Client, trigger Trigger, secret string, port int) *Server {
	if port == 0 {
		port = 8080
	}
	return &Server{
		store:   s,
		bili:    client,
		trigger: trigger,
		secret:  secret,
		port:    port,
	}
}

// Router builds the gin engine. Exposed for tests.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.handleHealth)

	api := r.Group("/api/v1")
	api.GET("/charts", s.handleCharts)
	api.GET("/charts/:id/songs", s.handleChartSongs)
	api.GET("/status", s.handleStatus)
	api.GET("/search", s.handleSearch)
	api.GET("/users/:mid/videos", s.handleUserVideos)
	api.GET("/play", s.handlePlay)
	api.POST("/crawl", s.requireSecret(), s.handleCrawl)

	return r
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf(":%d", s.port)
	fmt.Printf("sunoradar server listening on %s\n", addr)
	return s.Router().Run(addr)
}

// requireSecret guards the crawl trigger with a bearer token.
func (s *Server) requireSecret() gin.HandlerFunc {
	if s.secret == "" {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "unauthorized: missing or invalid header",
			})
			return
		}
		if strings.TrimPrefix(auth, "Bearer ") != s.secret {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "unauthorized: invalid token",
			})
			return
		}
		c.Next()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleCharts(c *gin.Context) {
	charts, err := s.store.ListCharts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "charts": charts, "count": len(charts)})
}

func (s *Server) handleChartSongs(c *gin.Context) {
	chartID := c.Param("id")
	if _, ok := crawler.ChartByID(chartID); !ok {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("unknown chart %q", chartID)})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "200"))
	songs, err := s.store.ListChartSongs(c.Request.Context(), chartID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "chart": chartID, "songs": songs, "count": len(songs)})
}

func (s *Server) handleStatus(c *gin.Context) {
	st, err := s.store.GetCrawlStatus(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	if st == nil {
		c.JSON(http.StatusOK, gin.H{"success": true, "status": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "status": st})
}

func (s *Server) handleSearch(c *gin.Context) {
	keyword := c.DefaultQuery("keyword", "suno")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	order := c.DefaultQuery("order", "click")

	if c.Query("type") == "user" {
		userOrder := "0"
		if order == "pubdate" {
			userOrder = "fans"
		}
		users, err := s.bili.SearchUsers(c.Request.Context(), keyword, page, userOrder)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}

		results := make([]gin.H, 0, len(users))
		for _, u := range users {
			results = append(results, gin.H{
				"mid":        u.Mid,
				"name":       u.Uname,
				"sign":       u.Usign,
				"fans":       u.Fans,
				"videos":     u.Videos,
				"avatar":     bili.NormalizePic(u.Upic),
				"level":      u.Level,
				"verified":   u.OfficialVerify.Type >= 0,
				"verifyDesc": u.OfficialVerify.Desc,
			})
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true, "type": "user", "keyword": keyword, "page": page,
			"results": results, "total": len(results),
		})
		return
	}

	duration, _ := strconv.Atoi(c.DefaultQuery("duration", "0"))
	tids, _ := strconv.Atoi(c.DefaultQuery("tids", "0"))
	days, _ := strconv.Atoi(c.DefaultQuery("timeRange", "0"))

	res, err := s.bili.SearchVideos(c.Request.Context(), bili.SearchOpts{
		Keyword:  keyword,
		Page:     page,
		Order:    order,
		Duration: duration,
		Tids:     tids,
		Days:     days,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	results := make([]gin.H, 0, len(res.Results))
	for _, it := range res.Results {
		results = append(results, gin.H{
			"bvid":      it.Bvid,
			"title":     bili.CleanTitle(it.Title),
			"pic":       bili.NormalizePic(it.Pic),
			"author":    it.Author,
			"mid":       it.Mid,
			"pubdate":   it.Pubdate,
			"play":      it.Play,
			"duration":  it.Duration,
			"danmaku":   it.Danmaku,
			"favorites": it.Favorites,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true, "type": "video", "keyword": keyword, "page": page, "order": order,
		"results": results, "total": res.NumResults, "numPages": res.NumPages, "pageSize": res.PageSize,
	})
}

func (s *Server) handleUserVideos(c *gin.Context) {
	mid, err := strconv.ParseInt(c.Param("mid"), 10, 64)
	if err != nil || mid == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "missing or invalid mid"})
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "30"))
	order := c.DefaultQuery("order", "pubdate")

	res, err := s.bili.GetUserVideos(c.Request.Context(), mid, page, pageSize, order)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	results := make([]gin.H, 0, len(res.Results))
	for _, v := range res.Results {
		results = append(results, gin.H{
			"bvid":     v.Bvid,
			"title":    v.Title,
			"pic":      bili.NormalizePic(v.Pic),
			"play":     v.Play,
			"pubdate":  v.Created,
			"duration": v.Length,
			"author":   v.Author,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true, "mid": mid, "page": res.Page, "pageSize": res.PageSize,
		"total": res.Total, "results": results,
	})
}

// handlePlay resolves the audio stream URL for a song. Byte-level proxying
// of the stream itself is left to the player.
func (s *Server) handlePlay(c *gin.Context) {
	bvid := c.Query("bvid")
	if bvid == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "missing bvid"})
		return
	}

	cid := c.Query("cid")
	if cid == "" {
		resolved, err := s.bili.ResolveStreamID(c.Request.Context(), bvid)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}
		cid = resolved
	}

	url, err := s.bili.ResolvePlayURL(c.Request.Context(), bvid, cid)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "bvid": bvid, "cid": cid, "url": url})
}

func (s *Server) handleCrawl(c *gin.Context) {
	ctx := c.Request.Context()

	if chartID := c.Query("chart"); chartID != "" {
		res, err := s.trigger.CrawlChart(ctx, chartID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"message": fmt.Sprintf("crawl failed: %v", err),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "crawl completed", "data": res})
		return
	}

	summaries, err := s.trigger.CrawlAll(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": fmt.Sprintf("crawl failed: %v", err),
			"data":    summaries,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "crawl completed", "data": summaries})
}
