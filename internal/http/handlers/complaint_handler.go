// Complaint HTTP handlers.
//
// This file exposes REST endpoints for persisted complaints (operator API):
//   - GET /complaints                (list, paginated, ETag support)
//   - GET /complaints/{id}           (single record)
//   - GET /complaints/{id}/messages  (conversation log, paginated, ETag support)
//   - PUT /complaints/{id}/status    (manual status update)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
package handlers

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-complaint-backend/internal/domain"
	"github.com/tbourn/go-complaint-backend/internal/repo"
	"github.com/tbourn/go-complaint-backend/internal/services"
)

// complaintIDRE matches the COMP-<date>-<suffix> identifier shape.
var complaintIDRE = regexp.MustCompile(`^COMP-\d{8}-[0-9a-zA-Z]{4}$`)

//
// DTOs
//

// ListComplaintsResponse wraps a page of complaints and pagination information.
type ListComplaintsResponse struct {
	Complaints []domain.Complaint `json:"complaints"`
	Pagination Pagination         `json:"pagination"`
}

// ComplaintMessagesResponse contains a page of a complaint's conversation log.
type ComplaintMessagesResponse struct {
	Messages   []domain.ConversationEntry `json:"messages"`
	Pagination Pagination                 `json:"pagination"`
}

// UpdateStatusRequest is the JSON payload for a manual status update.
type UpdateStatusRequest struct {
	// Status must be one of: Open, In Progress, Resolved.
	Status string `json:"status" binding:"required"`
	// Resolution optionally records why/how the complaint was closed.
	Resolution string `json:"resolution"`
}

//
// Handlers
//

// ListComplaints returns a page of complaints, newest first. Supports weak
// ETag via If-None-Match and may return 304.
func (h *Handlers) ListComplaints(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if h.DB != nil {
		count, maxTS, err := repo.ComplaintsStats(ctx, h.DB)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"complaints:%d:%d"`, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.compSvc.ListPage(ctx, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListComplaintsResponse{
		Complaints: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// GetComplaint returns a single complaint by id.
func (h *Handlers) GetComplaint(c *gin.Context) {
	id := c.Param("id")
	if !complaintIDRE.MatchString(id) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "complaint id must look like COMP-YYYYMMDD-xxxx")
		return
	}

	rec, err := h.compSvc.Get(c.Request.Context(), id)
	if err != nil {
		switch err {
		case services.ErrComplaintNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "complaint not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, rec)
}

// ListComplaintMessages returns a page of a complaint's conversation log in
// chronological order. Supports weak ETag via If-None-Match.
func (h *Handlers) ListComplaintMessages(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if !complaintIDRE.MatchString(id) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "complaint id must look like COMP-YYYYMMDD-xxxx")
		return
	}

	// ETag pre-check (best effort).
	if h.DB != nil {
		count, lastTS, err := repo.ConversationStats(ctx, h.DB, id)
		if err == nil {
			var ts int64
			if lastTS != nil {
				ts = lastTS.Unix()
			}
			etag := fmt.Sprintf(`W/"conversation:%s:%d:%d"`, id, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	page, pageSize := clampPagination(c)

	items, total, err := h.compSvc.MessagesPage(ctx, id, page, pageSize)
	if err != nil {
		switch err {
		case services.ErrComplaintNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "complaint not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		}
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ComplaintMessagesResponse{
		Messages: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// UpdateComplaintStatus manually sets a complaint's status (operator action).
func (h *Handlers) UpdateComplaintStatus(c *gin.Context) {
	id := c.Param("id")
	if !complaintIDRE.MatchString(id) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "complaint id must look like COMP-YYYYMMDD-xxxx")
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Status) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status required")
		return
	}

	err := h.compSvc.UpdateStatus(c.Request.Context(), id, strings.TrimSpace(req.Status), strings.TrimSpace(req.Resolution))
	if err != nil {
		switch err {
		case services.ErrInvalidStatus:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status must be one of: Open, In Progress, Resolved")
		case services.ErrComplaintNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "complaint not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeUpdateFailed, err.Error())
		}
		return
	}
	noContent(c)
}
