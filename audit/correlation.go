package audit

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ErrorCorrelationID is returned by Record when the event could not be
// recorded.
const ErrorCorrelationID = "AUDIT_ERROR"

// NewCorrelationID returns a process-unique id of the form
// "<unix millis in hex>-<uuid v7>". Ids sort by creation time.
func NewCorrelationID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return strconv.FormatInt(time.Now().UnixMilli(), 16) + "-" + id.String()
}
