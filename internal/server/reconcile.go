package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	datasetdomain "github.com/smallbiznis/incentiva/internal/dataset/domain"
	reconciledomain "github.com/smallbiznis/incentiva/internal/reconcile/domain"
)

type stageDatasetRequest struct {
	ColumnMapping map[string]string   `json:"column_mapping"`
	Rows          []map[string]string `json:"rows"`
}

func (s *Server) StageDataset(c *gin.Context) {
	campaignID, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var req stageDatasetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	dataset, err := s.datasetSvc.Stage(c.Request.Context(), datasetdomain.StageDatasetRequest{
		CampaignID:    campaignID,
		ColumnMapping: req.ColumnMapping,
		Rows:          req.Rows,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dataset)
}

type reconcileRequest struct {
	Simulate      bool                `json:"simulate"`
	ColumnMapping map[string]string   `json:"column_mapping"`
	Rows          []map[string]string `json:"rows"`
	DatasetID     string              `json:"dataset_id"`
}

// ReconcileCampaign accepts either inline rows with a column mapping or a
// staged dataset reference. With simulate set, decisions are computed but
// nothing is written.
func (s *Server) ReconcileCampaign(c *gin.Context) {
	campaignID, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var req reconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	domainReq := reconciledomain.ReconcileRequest{
		CampaignID: campaignID,
		Simulate:   req.Simulate,
	}

	if req.DatasetID != "" {
		datasetID, err := snowflake.ParseString(req.DatasetID)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		domainReq.DatasetID = datasetID
	}

	if len(req.Rows) > 0 {
		domainReq.ColumnMapping = reconciledomain.ColumnMapping(req.ColumnMapping)
		rows := make([]reconciledomain.ExternalRecord, 0, len(req.Rows))
		for _, row := range req.Rows {
			rows = append(rows, reconciledomain.ExternalRecord(row))
		}
		domainReq.Rows = rows
	}

	result, err := s.reconcileSvc.Reconcile(c.Request.Context(), domainReq)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
