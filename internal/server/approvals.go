package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	approval "github.com/smallbiznis/stitchboard/internal/approval/domain"
)

type submitApprovalRequest struct {
	Entity   string          `json:"entity"`
	TargetID string          `json:"target_id"`
	Payload  json.RawMessage `json:"payload"`
}

type rejectApprovalRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) ListApprovals(c *gin.Context) {
	p, err := callerFromContext(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	status, err := approval.ParseStatus(strings.TrimSpace(c.Query("status")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	approvals, err := s.approvalSvc.List(c.Request.Context(), p, status)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, listResponse[approval.Approval]{Data: approvals})
}

func (s *Server) SubmitApproval(c *gin.Context) {
	p, err := callerFromContext(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req submitApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	entity, err := approval.ParseTargetEntity(strings.TrimSpace(req.Entity))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	targetID, err := parseSnowflakeID(req.TargetID)
	if err != nil {
		AbortWithError(c, newValidationError("target_id", "invalid_id", "invalid target id"))
		return
	}

	record, err := s.approvalSvc.Submit(c.Request.Context(), p, entity, targetID, req.Payload)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordApprovalAudit(c, "approval.submit", record)

	c.JSON(http.StatusCreated, record)
}

func (s *Server) ApproveApproval(c *gin.Context) {
	p, err := callerFromContext(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid approval id"))
		return
	}

	record, err := s.approvalSvc.Approve(c.Request.Context(), p, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordApprovalAudit(c, "approval.approve", record)

	c.JSON(http.StatusOK, record)
}

func (s *Server) RejectApproval(c *gin.Context) {
	p, err := callerFromContext(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid approval id"))
		return
	}
	var req rejectApprovalRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	record, err := s.approvalSvc.Reject(c.Request.Context(), p, id, req.Reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordApprovalAudit(c, "approval.reject", record)

	c.JSON(http.StatusOK, record)
}

func (s *Server) recordApprovalAudit(c *gin.Context, action string, record *approval.Approval) {
	metadata := map[string]any{
		"entity":    string(record.Entity),
		"target_id": record.TargetID.String(),
		"status":    string(record.Status),
	}
	if record.Reason != "" {
		metadata["reason"] = record.Reason
	}
	s.recordAudit(c, action, "approval", record.ID, metadata)
}
