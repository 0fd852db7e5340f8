package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/huangang/perfsentry/internal/services"
	"github.com/huangang/perfsentry/pkg/response"
)

// pathID parses a positive numeric path parameter, answering 400 on failure.
func pathID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		response.BadRequest(c, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}

// idList parses "1,2,3".
func idList(raw string) ([]uint, error) {
	var ids []uint
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return nil, err
		}
		ids = append(ids, uint(id))
	}
	return ids, nil
}

// SubmitAnswersRequest is the body of every answer submission, keyed by
// question ID.
type SubmitAnswersRequest struct {
	Answers map[uint]services.AnswerInput `json:"answers" binding:"required"`
}

// DateRange accepts plain dates ("2025-01-31") as sent by the UI.
type DateRange struct {
	StartDate string `json:"start_date" binding:"required"`
	EndDate   string `json:"end_date" binding:"required"`
}

func (r DateRange) parse() (start, end time.Time, err error) {
	if start, err = parseDate(r.StartDate); err != nil {
		return
	}
	end, err = parseDate(r.EndDate)
	return
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
