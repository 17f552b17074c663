package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/skillmate/skillmate-core/config"
	"github.com/skillmate/skillmate-core/internal/application/command"
	"github.com/skillmate/skillmate-core/internal/application/query"
	"github.com/skillmate/skillmate-core/internal/interface/http/handlers"
)

// HeaderIdempotencyKey deduplicates generate requests per creator.
const HeaderIdempotencyKey = "Idempotency-Key"

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth is the liveness probe; it never touches dependencies.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleReady runs the dependency probes.
func (s *Server) handleReady(c *gin.Context) {
	status := s.deps.HealthChecker.Check(c.Request.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

// ══════════════════════════════════════════════════════════════════════════════
// COURSE PATHS
// ══════════════════════════════════════════════════════════════════════════════

type generateRequest struct {
	Subject    string `json:"subject" binding:"required"`
	Difficulty string `json:"difficulty" binding:"required"`
}

// handleGenerateCoursePath runs generation synchronously. 201 for a new path,
// 200 when an idempotency key resolved to an existing one, 502 with the
// FAILED path id when generation failed.
func (s *Server) handleGenerateCoursePath(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	res, err := s.deps.Generate.Handle(c.Request.Context(), command.GenerateCoursePathCommand{
		CreatorID:      handlers.UserID(c),
		Subject:        req.Subject,
		Difficulty:     req.Difficulty,
		IdempotencyKey: c.GetHeader(HeaderIdempotencyKey),
	})
	s.respondGeneration(c, res, err)
}

// handleRetryGeneration regenerates a FAILED path in place.
func (s *Server) handleRetryGeneration(c *gin.Context) {
	res, err := s.deps.Generate.Retry(c.Request.Context(), command.RetryGenerationCommand{
		CoursePathID: c.Param("id"),
		CallerID:     handlers.UserID(c),
	})
	s.respondGeneration(c, res, err)
}

func (s *Server) respondGeneration(c *gin.Context, res *command.GenerateCoursePathResult, err error) {
	if err != nil {
		id := ""
		if res != nil {
			id = res.CoursePathID
		}
		s.respondErrorFor(c, err, id)
		return
	}
	status := http.StatusCreated
	if res.Reused {
		status = http.StatusOK
	}
	c.Header("Location", "/api/v1/course-paths/"+res.CoursePathID)
	c.JSON(status, query.NewCoursePathDTO(res.CoursePath))
}

func (s *Server) handleGetCoursePath(c *gin.Context) {
	dto, err := s.deps.GetCoursePath.Handle(c.Request.Context(), query.GetCoursePathQuery{CoursePathID: c.Param("id")})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto)
}

func (s *Server) handleArchiveCoursePath(c *gin.Context) {
	p, err := s.deps.Catalogue.Archive(c.Request.Context(), command.ArchiveCoursePathCommand{
		CoursePathID: c.Param("id"),
		CallerID:     handlers.UserID(c),
		CallerRoles:  handlers.UserRoles(c),
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, query.NewCoursePathSummaryDTO(p))
}

func (s *Server) handleSearchCoursePaths(c *gin.Context) {
	if !s.featureEnabled(c, config.FeatureCoursePathSearch) {
		respondStatus(c, http.StatusNotFound, "not_found", "search is disabled")
		return
	}
	items, err := s.deps.Browse.Search(c.Request.Context(), query.SearchCoursePathsQuery{
		Query:    c.Query("q"),
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "pageSize", 20),
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// ══════════════════════════════════════════════════════════════════════════════
// ENROLLMENT & PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleEnroll(c *gin.Context) {
	res, err := s.deps.Enrollment.Enroll(c.Request.Context(), command.EnrollCommand{
		UserID:       handlers.UserID(c),
		CoursePathID: c.Param("id"),
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"coursePathId": res.CoursePathID, "enrolled": true, "created": res.Created})
}

func (s *Server) handleUnenroll(c *gin.Context) {
	res, err := s.deps.Enrollment.Unenroll(c.Request.Context(), command.UnenrollCommand{
		UserID:       handlers.UserID(c),
		CoursePathID: c.Param("id"),
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"coursePathId": res.CoursePathID, "enrolled": false, "removed": res.Removed})
}

func (s *Server) handleMarkTopicComplete(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		respondStatus(c, http.StatusBadRequest, "validation_error", "topic index must be an integer")
		return
	}
	res, err := s.deps.CompleteStep.Handle(c.Request.Context(), command.MarkTopicCompleteCommand{
		UserID:       handlers.UserID(c),
		CoursePathID: c.Param("id"),
		TopicIndex:   index,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"coursePathId":          c.Param("id"),
		"completedTopicIndices": res.CompletedIndices,
		"topicCount":            res.TopicCount,
		"percentage":            res.Percentage,
		"changed":               res.Changed,
	})
}

func (s *Server) handleGetProgress(c *gin.Context) {
	dto, err := s.deps.GetProgress.Handle(c.Request.Context(), query.GetProgressQuery{
		UserID:       handlers.UserID(c),
		CoursePathID: c.Param("id"),
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto)
}

// ══════════════════════════════════════════════════════════════════════════════
// REVIEWS
// ══════════════════════════════════════════════════════════════════════════════

type reviewRequest struct {
	Rating int    `json:"rating" binding:"required"`
	Text   string `json:"text"`
}

// handleSubmitReview creates or replaces the caller's review.
func (s *Server) handleSubmitReview(c *gin.Context) {
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	res, err := s.deps.SubmitReview.Handle(c.Request.Context(), command.SubmitReviewCommand{
		UserID:       handlers.UserID(c),
		CoursePathID: c.Param("id"),
		Rating:       req.Rating,
		Text:         req.Text,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	status := http.StatusCreated
	if res.Updated {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"review": query.NewReviewDTO(res.Review), "aggregates": res.Aggregates})
}

func (s *Server) handleListReviews(c *gin.Context) {
	page, err := s.deps.Browse.ListReviews(c.Request.Context(), query.ListReviewsQuery{
		CoursePathID: c.Param("id"),
		Sort:         c.Query("sort"),
		Page:         queryInt(c, "page", 1),
		PageSize:     queryInt(c, "pageSize", 20),
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) handleMarkReviewHelpful(c *gin.Context) {
	if !s.featureEnabled(c, config.FeatureHelpfulVotes) {
		respondStatus(c, http.StatusNotFound, "not_found", "helpful votes are disabled")
		return
	}
	res, err := s.deps.HelpfulVote.Handle(c.Request.Context(), command.MarkReviewHelpfulCommand{
		ReviewID: c.Param("id"),
		UserID:   handlers.UserID(c),
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reviewId": res.ReviewID, "helpfulCount": res.HelpfulCount, "added": res.Added})
}

// ══════════════════════════════════════════════════════════════════════════════
// USERS & LEARNING PATHS
// ══════════════════════════════════════════════════════════════════════════════

type registerRequest struct {
	Username string   `json:"username" binding:"required"`
	Email    string   `json:"email" binding:"required"`
	Roles    []string `json:"roles"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"createdAt"`
}

// handleRegisterUser stores the caller's profile under the gateway identity.
func (s *Server) handleRegisterUser(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	u, err := s.deps.RegisterUser.Handle(c.Request.Context(), command.RegisterUserCommand{
		ID:       handlers.UserID(c),
		Username: req.Username,
		Email:    req.Email,
		Roles:    req.Roles,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	roles := make([]string, len(u.Roles))
	for i, r := range u.Roles {
		roles[i] = string(r)
	}
	c.JSON(http.StatusCreated, userResponse{
		ID:        string(u.ID),
		Username:  u.Username,
		Email:     u.Email,
		Roles:     roles,
		CreatedAt: u.CreatedAt,
	})
}

// handleGetMyCoursePaths returns {created, enrolled} for the caller.
func (s *Server) handleGetMyCoursePaths(c *gin.Context) {
	dto, err := s.deps.GetUserCoursePaths.Handle(c.Request.Context(), query.GetUserCoursePathsQuery{
		UserID: handlers.UserID(c),
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto)
}

type learningPathRequest struct {
	Title         string   `json:"title" binding:"required"`
	Description   string   `json:"description"`
	Difficulty    string   `json:"difficulty" binding:"required"`
	CoursePathIDs []string `json:"coursePathIds" binding:"required"`
}

func (s *Server) handleCreateLearningPath(c *gin.Context) {
	var req learningPathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	lp, err := s.deps.Catalogue.CreateLearningPath(c.Request.Context(), command.CreateLearningPathCommand{
		CreatorID:     handlers.UserID(c),
		Title:         req.Title,
		Description:   req.Description,
		Difficulty:    req.Difficulty,
		CoursePathIDs: req.CoursePathIDs,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	dto, err := s.deps.Browse.GetLearningPath(c.Request.Context(), query.GetLearningPathQuery{LearningPathID: lp.ID})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.Header("Location", "/api/v1/learning-paths/"+lp.ID)
	c.JSON(http.StatusCreated, dto)
}

func (s *Server) handleGetLearningPath(c *gin.Context) {
	dto, err := s.deps.Browse.GetLearningPath(c.Request.Context(), query.GetLearningPathQuery{LearningPathID: c.Param("id")})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto)
}

func (s *Server) handleGetLearningPathProgress(c *gin.Context) {
	dto, err := s.deps.PathProgress.Handle(c.Request.Context(), query.GetLearningPathProgressQuery{
		UserID:         handlers.UserID(c),
		LearningPathID: c.Param("id"),
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto)
}
