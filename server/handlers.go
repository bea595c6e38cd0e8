package server

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xhad/askgov/internal/models"
	"github.com/xhad/askgov/pkg/processor"
	"github.com/xhad/askgov/pkg/scraper"
)

const maxUploadSize = 10 << 20

type addDocumentRequest struct {
	Content  string          `json:"content"`
	Metadata models.Metadata `json:"metadata"`
}

type knowledgeRequest struct {
	Markdown string `json:"markdown"`
	URL      string `json:"url"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "askgov",
	})
}

func (s *Server) handleAddDocument(c *gin.Context) {
	var req addDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	doc, err := s.service.Ingest(c.Request.Context(), req.Content, req.Metadata)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "id": doc.ID})
}

func (s *Server) handleSearch(c *gin.Context) {
	query := c.Query("query")
	if strings.TrimSpace(query) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query parameter"})
		return
	}

	topK := s.service.DefaultTopK()
	if raw := c.Query("topK"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "topK must be a positive integer"})
			return
		}
		topK = n
	}

	result, err := s.service.Search(c.Request.Context(), query, topK)
	if err != nil {
		abortWithError(c, err)
		return
	}

	contents := make([]string, len(result.Results))
	for i, r := range result.Results {
		contents[i] = r.Content
	}

	c.JSON(http.StatusOK, gin.H{
		"results": contents,
		"debug": gin.H{
			"query":            query,
			"totalDocuments":   result.Total,
			"matchedDocuments": result.Matched,
			"topScores":        result.TopScores,
			"fallback":         result.Fallback,
		},
	})
}

func (s *Server) handleDeleteDocument(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing id parameter"})
		return
	}

	if err := s.service.Delete(c.Request.Context(), id); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleList(c *gin.Context) {
	groups, err := s.service.List(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": groups})
}

// handleImportKnowledge accepts a multipart "file" upload, or JSON with
// either inline markdown or a URL to fetch it from.
func (s *Server) handleImportKnowledge(c *gin.Context) {
	markdown, err := s.readKnowledge(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	entries := processor.ParseMarkdown(markdown)
	if len(entries) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "no question/answer entries found, check the file format",
		})
		return
	}

	report, err := s.service.IngestEntries(c.Request.Context(), entries, nil)
	if err != nil {
		status := statusFor(err)
		c.JSON(status, gin.H{
			"success":      false,
			"error":        err.Error(),
			"entriesCount": report.Entries,
			"addedCount":   report.Added,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"message":      "knowledge imported",
		"entriesCount": report.Entries,
		"addedCount":   report.Added,
	})
}

func (s *Server) readKnowledge(c *gin.Context) (string, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		file, err := c.FormFile("file")
		if err != nil {
			return "", fmt.Errorf("no file uploaded")
		}
		src, err := file.Open()
		if err != nil {
			return "", fmt.Errorf("failed to open upload: %w", err)
		}
		defer src.Close()

		data, err := io.ReadAll(io.LimitReader(src, maxUploadSize))
		if err != nil {
			return "", fmt.Errorf("failed to read upload: %w", err)
		}
		return string(data), nil
	}

	var req knowledgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return "", fmt.Errorf("invalid request body")
	}

	switch {
	case req.Markdown != "":
		return req.Markdown, nil
	case req.URL != "":
		return s.fetchKnowledge(c, req.URL)
	default:
		return "", fmt.Errorf("markdown or url is required")
	}
}

func (s *Server) fetchKnowledge(c *gin.Context, url string) (string, error) {
	cfg := s.config.Scraper
	cfg.BaseURL = url

	sc, err := scraper.NewWithConfig(cfg)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}

	pages, err := sc.Scrape(c.Request.Context(), url)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", url, err)
	}

	parts := make([]string, 0, len(pages))
	for _, p := range pages {
		parts = append(parts, p.Content)
	}
	return strings.Join(parts, "\n"), nil
}
