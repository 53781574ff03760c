package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	production "github.com/smallbiznis/stitchboard/internal/production/domain"
)

func (s *Server) RecordCutting(c *gin.Context) {
	var req production.RecordCuttingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	cutting, err := s.productionSvc.RecordCutting(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, cutting)
}

func (s *Server) IssueJob(c *gin.Context) {
	var req production.IssueJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	job, err := s.productionSvc.IssueJob(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, job)
}

func (s *Server) UpdateJob(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid job id"))
		return
	}
	var req production.UpdateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	job, err := s.productionSvc.UpdateJob(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, job)
}

func (s *Server) RecordShipment(c *gin.Context) {
	var req production.RecordShipmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	shipment, err := s.productionSvc.RecordShipment(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, shipment)
}
