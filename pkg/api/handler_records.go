package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/newsloom/newsloom/pkg/models"
	"github.com/newsloom/newsloom/pkg/store"
)

// listRecordsHandler handles GET /:source/records. With processed=true each
// raw item carries its editorial product and, for relevant items, the
// short-form rendering.
func (s *Server) listRecordsHandler(c *gin.Context) {
	kind, err := models.ParseSourceKind(c.Param("source"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	limit, err := intQuery(c, "limit", 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	offset, err := intQuery(c, "offset", 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	withProcessed, err := boolQuery(c, "processed", false)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	ctx := c.Request.Context()
	raws, err := s.deps.Raw.ListBySource(ctx, kind, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}

	records := make([]RecordView, 0, len(raws))
	for i := range raws {
		view := RecordView{Raw: &raws[i]}
		if withProcessed {
			processed, err := s.deps.Processed.GetBySourceID(ctx, kind, raws[i].SourceID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				writeError(c, err)
				return
			}
			view.Processed = processed

			if processed != nil && processed.IsRelevant {
				short, err := s.deps.ShortForm.GetBySourceID(ctx, kind, raws[i].SourceID)
				if err != nil && !errors.Is(err, store.ErrNotFound) {
					writeError(c, err)
					return
				}
				view.ShortForm = short
			}
		}
		records = append(records, view)
	}

	c.JSON(http.StatusOK, RecordsResponse{
		SourceKind: kind,
		Count:      len(records),
		Records:    records,
	})
}
